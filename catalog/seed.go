/*
Package catalog loads the item catalog, recipes and opening stock from a
YAML seed file.

The engine treats items as an external, read-only catalog. A seed file is how
that catalog gets into the database for development and demos:

	items:
	  - id: flour
	    name: Flour
	    unit: kg
	    type: Raw
	    shelf_life_days: 180
	  - id: dough
	    name: Dough
	    unit: kg
	    type: Prepped
	    shelf_life_days: 2
	recipes:
	  - output: dough
	    ingredients:
	      - input: flour
	        quantity: "0.6"
	stock:
	  - supplier: Opening balance
	    lines:
	      - item: flour
	        quantity: "25"
	        unit_cost: "1.10"

Recipes go through recipe.Graph and stock through intake.InvoiceIntake, so
a seed is validated exactly like API input.
*/
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/recipe"
)

type Seed struct {
	Name        string        `yaml:"name,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Items       []ItemSpec    `yaml:"items"`
	Recipes     []RecipeSpec  `yaml:"recipes,omitempty"`
	Stock       []InvoiceSpec `yaml:"stock,omitempty"`
}

type ItemSpec struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Unit          string `yaml:"unit"`
	Type          string `yaml:"type"`
	ShelfLifeDays int    `yaml:"shelf_life_days,omitempty"`
}

type RecipeSpec struct {
	Output      string           `yaml:"output"`
	Ingredients []IngredientSpec `yaml:"ingredients"`
}

type IngredientSpec struct {
	Input    string `yaml:"input"`
	Quantity string `yaml:"quantity"`
	Unit     string `yaml:"unit,omitempty"`
}

type InvoiceSpec struct {
	Supplier string     `yaml:"supplier"`
	Lines    []LineSpec `yaml:"lines"`
}

type LineSpec struct {
	Item     string `yaml:"item"`
	Quantity string `yaml:"quantity"`
	Unit     string `yaml:"unit,omitempty"`
	UnitCost string `yaml:"unit_cost"`
}

// Load reads and parses a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) validate() error {
	seen := make(map[string]bool, len(s.Items))
	for i, it := range s.Items {
		if strings.TrimSpace(it.ID) == "" {
			return ledger.Invalid(fmt.Sprintf("items[%d].id", i), "is required")
		}
		if seen[it.ID] {
			return ledger.Invalid(fmt.Sprintf("items[%d].id", i), "duplicate id %q", it.ID)
		}
		seen[it.ID] = true
		if !ledger.ItemType(it.Type).Valid() {
			return ledger.Invalid(fmt.Sprintf("items[%d].type", i), "unknown type %q", it.Type)
		}
		if it.ShelfLifeDays < 0 {
			return ledger.Invalid(fmt.Sprintf("items[%d].shelf_life_days", i), "must not be negative")
		}
	}
	return nil
}

// Apply writes the seed: items first, then recipes, then opening stock.
func (s *Seed) Apply(ctx context.Context, w ledger.CatalogWriter, g *recipe.Graph, in *intake.InvoiceIntake) error {
	for _, it := range s.Items {
		if err := w.SaveItem(ctx, ledger.Item{
			ID:            ledger.ItemID(it.ID),
			Name:          it.Name,
			Unit:          it.Unit,
			Type:          ledger.ItemType(it.Type),
			ShelfLifeDays: it.ShelfLifeDays,
		}); err != nil {
			return fmt.Errorf("save item %s: %w", it.ID, err)
		}
	}

	for _, r := range s.Recipes {
		ings := make([]recipe.Ingredient, 0, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			qty, err := parseDecimal("quantity", ing.Quantity)
			if err != nil {
				return fmt.Errorf("recipe %s: %w", r.Output, err)
			}
			ings = append(ings, recipe.Ingredient{
				InputItemID: ledger.ItemID(ing.Input),
				Quantity:    qty,
				Unit:        ing.Unit,
			})
		}
		if err := g.SetRecipe(ctx, ledger.ItemID(r.Output), ings); err != nil {
			return fmt.Errorf("recipe %s: %w", r.Output, err)
		}
	}

	for _, inv := range s.Stock {
		lines := make([]intake.Line, 0, len(inv.Lines))
		for _, l := range inv.Lines {
			qty, err := parseDecimal("quantity", l.Quantity)
			if err != nil {
				return fmt.Errorf("stock %s: %w", inv.Supplier, err)
			}
			cost, err := parseDecimal("unit_cost", l.UnitCost)
			if err != nil {
				return fmt.Errorf("stock %s: %w", inv.Supplier, err)
			}
			lines = append(lines, intake.Line{
				ItemID: ledger.ItemID(l.Item), Quantity: qty, Unit: l.Unit, UnitCost: cost,
			})
		}
		if _, err := in.CreateFromInvoiceLines(ctx, intake.InvoiceInput{
			SupplierName: inv.Supplier,
			Lines:        lines,
		}); err != nil {
			return fmt.Errorf("stock %s: %w", inv.Supplier, err)
		}
	}
	return nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ledger.Invalid(field, "not a number: %q", s)
	}
	return d, nil
}
