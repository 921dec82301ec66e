package intake

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/batch-ledger/ledger"
)

// =============================================================================
// EXPIRY SWEEP - Writes off expired stock as Expired waste
// =============================================================================

// ExpirySweeper periodically logs the remaining quantity of every expired,
// active batch as waste with reason Expired.
type ExpirySweeper struct {
	ledger   *ledger.Ledger
	waste    *WasteRecorder
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExpirySweeper(l *ledger.Ledger, waste *WasteRecorder, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		ledger:   l,
		waste:    waste,
		interval: interval,
		log:      l.Logger().With().Str("component", "expiry").Logger(),
	}
}

// SweepResult lists the waste entries written by one sweep.
type SweepResult struct {
	WrittenOff []ledger.WasteLog
	Skipped    []ledger.BatchID
}

// Sweep writes off every active batch whose expiration is at or before now.
// A batch that changed under the sweep is skipped and picked up next time.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	batches, err := s.ledger.Store().ListBatches(ctx, ledger.BatchFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	res := &SweepResult{}
	for _, b := range batches {
		// FIFO order puts the earliest expirations first
		if b.ExpiresAt == nil || b.ExpiresAt.After(now) {
			break
		}
		entry, err := s.waste.LogWaste(ctx, WasteRequest{
			BatchID:  b.ID,
			Quantity: b.QuantityCurrent,
			Reason:   ledger.WasteExpired,
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.log.Warn().Err(err).Str("batch_id", string(b.ID)).Msg("expired batch skipped")
			res.Skipped = append(res.Skipped, b.ID)
			continue
		}
		res.WrittenOff = append(res.WrittenOff, *entry)
	}
	return res, nil
}

// Start runs Sweep immediately and then on every tick until Stop.
// A non-positive interval disables the sweeper.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
}

func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.log.Info().Msg("expiry sweeper stopped")
}

func (s *ExpirySweeper) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) sweepOnce(ctx context.Context) {
	res, err := s.Sweep(ctx, s.ledger.Now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("expiry sweep failed")
		}
		return
	}
	if len(res.WrittenOff) > 0 {
		s.log.Info().Int("batches", len(res.WrittenOff)).Int("skipped", len(res.Skipped)).
			Msg("expired stock written off")
	}
}
