/*
Package recipe owns the ingredient graph and the cost rollup over it.

PURPOSE:
  An edge output -> input says one unit of output needs QuantityRequired of
  input. Edges are validated at insertion so the graph stays acyclic:

    1. Self-loop                       -> ErrCycleDetected
    2. input already reaches output    -> ErrCycleDetected (DFS)
    3. tier(input) >= tier(output)     -> ErrValidation (Raw < Prepped < Dish)

  The DFS runs before the tier check so that "make X depend on itself"
  always reports a cycle, whatever the tiers.

SEE ALSO:
  - cost.go: unit cost rollup
  - production package: consumes Requirements
*/
package recipe

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/units"
)

// Graph validates and persists ingredient edges. Edits are serialized; reads
// are not.
type Graph struct {
	store ledger.TxStore
	units units.Converter
	log   zerolog.Logger
	mu    sync.Mutex
}

func NewGraph(store ledger.TxStore, conv units.Converter, log zerolog.Logger) *Graph {
	if conv == nil {
		conv = units.Default()
	}
	return &Graph{store: store, units: conv, log: log}
}

// Ingredient is one line of a recipe as supplied by a caller.
type Ingredient struct {
	InputItemID ledger.ItemID
	Quantity    decimal.Decimal
	Unit        string
}

// =============================================================================
// EDITS
// =============================================================================

// AddEdge inserts or replaces the edge output -> input.
func (g *Graph) AddEdge(ctx context.Context, output, input ledger.ItemID, qty decimal.Decimal, unit string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.WithTx(ctx, func(s ledger.Store) error {
		adj, err := loadAdjacency(ctx, s)
		if err != nil {
			return err
		}
		c, err := g.validateEdge(ctx, s, adj, output, Ingredient{InputItemID: input, Quantity: qty, Unit: unit})
		if err != nil {
			return err
		}
		if err := s.UpsertComposition(ctx, c); err != nil {
			return fmt.Errorf("upsert composition: %w", err)
		}
		g.log.Info().Str("output_item_id", string(output)).Str("input_item_id", string(input)).
			Str("quantity", qty.String()).Msg("recipe edge saved")
		return nil
	})
}

// SetRecipe replaces every edge of output. Either all ingredients are
// accepted or the stored recipe is left as it was.
func (g *Graph) SetRecipe(ctx context.Context, output ledger.ItemID, ingredients []Ingredient) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.store.WithTx(ctx, func(s ledger.Store) error {
		adj, err := loadAdjacency(ctx, s)
		if err != nil {
			return err
		}
		old := adj[output]
		delete(adj, output)

		seen := make(map[ledger.ItemID]bool, len(ingredients))
		edges := make([]ledger.Composition, 0, len(ingredients))
		for _, ing := range ingredients {
			if seen[ing.InputItemID] {
				return ledger.Invalid("ingredients", "item %s listed twice", ing.InputItemID)
			}
			seen[ing.InputItemID] = true

			c, err := g.validateEdge(ctx, s, adj, output, ing)
			if err != nil {
				return err
			}
			adj[output] = append(adj[output], ing.InputItemID)
			edges = append(edges, c)
		}

		for _, in := range old {
			if err := s.DeleteComposition(ctx, output, in); err != nil {
				return fmt.Errorf("delete composition: %w", err)
			}
		}
		for _, c := range edges {
			if err := s.UpsertComposition(ctx, c); err != nil {
				return fmt.Errorf("upsert composition: %w", err)
			}
		}
		g.log.Info().Str("output_item_id", string(output)).Int("ingredients", len(edges)).Msg("recipe replaced")
		return nil
	})
}

func (g *Graph) RemoveEdge(ctx context.Context, output, input ledger.ItemID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.DeleteComposition(ctx, output, input)
}

// GetRecipe returns the edges of item ordered by input id. A Raw item, or
// any item without edges, returns an empty recipe.
func (g *Graph) GetRecipe(ctx context.Context, item ledger.ItemID) ([]ledger.Composition, error) {
	if _, err := g.store.GetItem(ctx, item); err != nil {
		return nil, err
	}
	return g.store.Compositions(ctx, item)
}

func (g *Graph) validateEdge(ctx context.Context, s ledger.Store, adj map[ledger.ItemID][]ledger.ItemID, output ledger.ItemID, ing Ingredient) (ledger.Composition, error) {
	input := ing.InputItemID
	if !ing.Quantity.IsPositive() {
		return ledger.Composition{}, ledger.Invalid("quantity_required", "must be positive, got %s", ing.Quantity)
	}
	if output == input {
		return ledger.Composition{}, &ledger.CycleError{Path: []ledger.ItemID{output, output}}
	}

	outItem, err := s.GetItem(ctx, output)
	if err != nil {
		return ledger.Composition{}, err
	}
	inItem, err := s.GetItem(ctx, input)
	if err != nil {
		return ledger.Composition{}, err
	}

	if path := findPath(adj, input, output); path != nil {
		return ledger.Composition{}, &ledger.CycleError{Path: append([]ledger.ItemID{output}, path...)}
	}

	if inItem.Type.Tier() < 0 || outItem.Type.Tier() < 0 {
		return ledger.Composition{}, ledger.Invalid("type", "unknown item type")
	}
	if inItem.Type.Tier() >= outItem.Type.Tier() {
		return ledger.Composition{}, ledger.Invalid("input_item_id",
			"%s (%s) cannot be an ingredient of %s (%s)", input, inItem.Type, output, outItem.Type)
	}

	if ing.Unit != "" {
		if _, err := g.units.Convert(decimal.NewFromInt(1), ing.Unit, inItem.Unit); err != nil {
			return ledger.Composition{}, ledger.Invalid("unit", "%v", err)
		}
	}

	return ledger.Composition{
		OutputItemID:     output,
		InputItemID:      input,
		QuantityRequired: ing.Quantity,
		Unit:             ing.Unit,
	}, nil
}

// =============================================================================
// GRAPH TRAVERSAL
// =============================================================================

func loadAdjacency(ctx context.Context, s ledger.RecipeStore) (map[ledger.ItemID][]ledger.ItemID, error) {
	all, err := s.AllCompositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load compositions: %w", err)
	}
	adj := make(map[ledger.ItemID][]ledger.ItemID)
	for _, c := range all {
		adj[c.OutputItemID] = append(adj[c.OutputItemID], c.InputItemID)
	}
	return adj, nil
}

// findPath returns the path from -> ... -> to following edges, or nil.
// Iterative DFS with an explicit stack.
func findPath(adj map[ledger.ItemID][]ledger.ItemID, from, to ledger.ItemID) []ledger.ItemID {
	parent := map[ledger.ItemID]ledger.ItemID{}
	seen := map[ledger.ItemID]bool{from: true}
	stack := []ledger.ItemID{from}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			var path []ledger.ItemID
			for cur := n; ; cur = parent[cur] {
				path = append([]ledger.ItemID{cur}, path...)
				if cur == from {
					return path
				}
			}
		}
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				parent[next] = n
				stack = append(stack, next)
			}
		}
	}
	return nil
}

// =============================================================================
// REQUIREMENTS
// =============================================================================

// Requirement is the demand on one ingredient for a given output quantity,
// in the ingredient's own unit.
type Requirement struct {
	InputItemID ledger.ItemID
	PerUnit     decimal.Decimal // converted quantity_required
	Needed      decimal.Decimal // PerUnit x quantity
}

// Requirements expands the recipe of output for qty units. Raw items fail
// with ErrValidation, composites without edges with ErrNoRecipeDefined.
func (g *Graph) Requirements(ctx context.Context, output ledger.ItemID, qty decimal.Decimal) ([]Requirement, error) {
	item, err := g.store.GetItem(ctx, output)
	if err != nil {
		return nil, err
	}
	if item.Type == ledger.ItemRaw {
		return nil, ledger.Invalid("output_item_id", "%s is a raw item and cannot be produced", output)
	}
	edges, err := g.store.Compositions(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("load recipe: %w", err)
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNoRecipeDefined, output)
	}

	reqs := make([]Requirement, 0, len(edges))
	for _, e := range edges {
		perUnit, err := g.perUnit(ctx, g.store, e)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, Requirement{
			InputItemID: e.InputItemID,
			PerUnit:     perUnit,
			Needed:      perUnit.Mul(qty),
		})
	}
	return reqs, nil
}

// perUnit converts an edge's quantity into the input item's unit.
func (g *Graph) perUnit(ctx context.Context, c ledger.Catalog, e ledger.Composition) (decimal.Decimal, error) {
	if e.Unit == "" {
		return e.QuantityRequired, nil
	}
	in, err := c.GetItem(ctx, e.InputItemID)
	if err != nil {
		return decimal.Zero, err
	}
	q, err := g.units.Convert(e.QuantityRequired, e.Unit, in.Unit)
	if err != nil {
		return decimal.Zero, ledger.Invalid("unit", "%s -> %s: %v", e.OutputItemID, e.InputItemID, err)
	}
	return q, nil
}
