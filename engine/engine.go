/*
Package engine wires the ledger services over one store.

PURPOSE:
  One place that builds the Ledger, RecipeGraph, production recorder and
  reverter, waste and invoice intake, and read queries with a shared
  clock, logger and unit converter. cmd/server and the API tests construct
  an Engine; nothing else needs to know how the pieces connect.

SEE ALSO:
  - cmd/server/main.go: store selection and startup
  - api/handlers.go: the HTTP surface over an Engine
*/
package engine

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/production"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/report"
	"github.com/warp/batch-ledger/units"
)

type Engine struct {
	Store      ledger.TxStore
	Ledger     *ledger.Ledger
	Recipes    *recipe.Graph
	Production *production.Recorder
	Reverts    *production.Reverter
	Waste      *intake.WasteRecorder
	Invoices   *intake.InvoiceIntake
	Queries    *report.Queries
	Expiry     *intake.ExpirySweeper
	Units      units.Converter
}

type Options struct {
	Logger      *zerolog.Logger // nil disables logging
	Clock       func() time.Time
	LockTimeout time.Duration
	// LowStock is the dashboard threshold; zero uses the report default.
	LowStock  decimal.Decimal
	Converter units.Converter
	// ExpiryInterval is how often expired stock is written off once
	// Expiry.Start is called; zero disables the background sweep.
	ExpiryInterval time.Duration
}

func New(store ledger.TxStore, opts Options) *Engine {
	conv := opts.Converter
	if conv == nil {
		conv = units.Default()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	lopts := []ledger.Option{
		ledger.WithLogger(log.With().Str("component", "ledger").Logger()),
		ledger.WithLockTimeout(opts.LockTimeout),
	}
	if opts.Clock != nil {
		lopts = append(lopts, ledger.WithClock(opts.Clock))
	}
	l := ledger.New(store, lopts...)
	g := recipe.NewGraph(store, conv, log.With().Str("component", "recipes").Logger())

	waste := intake.NewWasteRecorder(l)

	return &Engine{
		Store:      store,
		Ledger:     l,
		Recipes:    g,
		Production: production.NewRecorder(l, g),
		Reverts:    production.NewReverter(l),
		Waste:      waste,
		Invoices:   intake.NewInvoiceIntake(l, conv),
		Queries:    report.NewQueries(store, g, opts.LowStock),
		Expiry:     intake.NewExpirySweeper(l, waste, opts.ExpiryInterval),
		Units:      conv,
	}
}
