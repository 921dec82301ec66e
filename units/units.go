// Package units converts quantities between units of measure.
//
// The ledger only depends on the Converter interface; Table is the default
// implementation with mass, volume and package factors. Unit names are
// case-insensitive and surrounding whitespace is ignored.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrIncompatible = errors.New("incompatible units")

// Converter converts qty expressed in from into to.
type Converter interface {
	Convert(qty decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// ConversionError names the pair that could not be converted.
type ConversionError struct {
	From string
	To   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert from %q to %q", e.From, e.To)
}

func (e *ConversionError) Unwrap() error { return ErrIncompatible }

// =============================================================================
// TABLE
// =============================================================================

// Family groups units that convert through one base unit.
type Family struct {
	Base    string
	Factors map[string]decimal.Decimal // units of Base per 1 unit
}

// Table converts within a family, and from a package unit to any unit of a
// family the package has a size for.
type Table struct {
	families []Family
	packages map[string]map[string]decimal.Decimal // package -> unit -> size
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	Mass = Family{Base: "kg", Factors: map[string]decimal.Decimal{
		"kg":  d("1"),
		"g":   d("0.001"),
		"lb":  d("0.453592"),
		"oz":  d("0.0283495"),
		"ton": d("1000"),
	}}

	Volume = Family{Base: "liter", Factors: map[string]decimal.Decimal{
		"liter":  d("1"),
		"l":      d("1"),
		"ml":     d("0.001"),
		"gallon": d("3.78541"),
		"cup":    d("0.236588"),
		"fl_oz":  d("0.0295735"),
	}}
)

// DefaultPackages are the standard supplier package sizes.
func DefaultPackages() map[string]map[string]decimal.Decimal {
	return map[string]map[string]decimal.Decimal{
		"case":   {"kg": d("10"), "liter": d("12")},
		"bag":    {"kg": d("5")},
		"box":    {"kg": d("2.5")},
		"bottle": {"liter": d("0.75")},
		"can":    {"liter": d("0.33")},
	}
}

func NewTable(packages map[string]map[string]decimal.Decimal, families ...Family) *Table {
	t := &Table{families: families, packages: make(map[string]map[string]decimal.Decimal)}
	for pkg, sizes := range packages {
		norm := make(map[string]decimal.Decimal, len(sizes))
		for unit, size := range sizes {
			norm[normalize(unit)] = size
		}
		t.packages[normalize(pkg)] = norm
	}
	return t
}

// Default is the mass + volume + package table.
func Default() *Table {
	return NewTable(DefaultPackages(), Mass, Volume)
}

func normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

func (t *Table) family(unit string) (Family, bool) {
	for _, f := range t.families {
		if _, ok := f.Factors[unit]; ok {
			return f, true
		}
	}
	return Family{}, false
}

// Convert implements Converter. Empty units and identical units are the
// identity.
func (t *Table) Convert(qty decimal.Decimal, from, to string) (decimal.Decimal, error) {
	f, tu := normalize(from), normalize(to)
	if f == tu || f == "" || tu == "" {
		return qty, nil
	}

	if fam, ok := t.family(f); ok {
		if _, same := fam.Factors[tu]; same {
			return qty.Mul(fam.Factors[f]).Div(fam.Factors[tu]), nil
		}
	}

	if size, ok := t.packageSize(f, tu); ok {
		return qty.Mul(size), nil
	}
	if size, ok := t.packageSize(tu, f); ok {
		return qty.Div(size), nil
	}

	return decimal.Zero, &ConversionError{From: from, To: to}
}

// packageSize returns how many units of unit one pkg holds, going through
// the package's own size unit when needed (case -> kg -> g).
func (t *Table) packageSize(pkg, unit string) (decimal.Decimal, bool) {
	sizes, ok := t.packages[pkg]
	if !ok {
		return decimal.Zero, false
	}
	if size, ok := sizes[unit]; ok {
		return size, true
	}
	fam, ok := t.family(unit)
	if !ok {
		return decimal.Zero, false
	}
	for sizeUnit, size := range sizes {
		if factor, ok := fam.Factors[sizeUnit]; ok {
			return size.Mul(factor).Div(fam.Factors[unit]), true
		}
	}
	return decimal.Zero, false
}

// Identity treats every pair as convertible 1:1.
type Identity struct{}

func (Identity) Convert(qty decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	return qty, nil
}
