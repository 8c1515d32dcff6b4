package service

import (
	"context"
	"slices"
	"sort"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/utils"
)

// CandidateFinder returns catalog products satisfying the categorical part
// of c. It may over-return: the matcher re-checks every condition.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, c model.Criteria) ([]model.Product, error)
}

// Candidates is the verbatim result of a single match level.
type Candidates struct {
	Level    string
	Products []model.Product
}

type Matcher struct {
	finder CandidateFinder
	policy model.MatchLevelPolicy
	min    int
	owners map[int64]int64
}

func NewMatcher(finder CandidateFinder, policy model.MatchLevelPolicy, minCandidates int) *Matcher {
	return &Matcher{finder: finder, policy: policy, min: minCandidates}
}

// SkipDuplicates drops every product listed in owners from the candidates:
// a shared barcode is recommended only as its owner.
func (m *Matcher) SkipDuplicates(owners map[int64]int64) *Matcher {
	m.owners = owners
	return m
}

// FindCandidates walks the policy strict → loose and stops at the first level
// with at least min candidates. Levels are never combined. When every level
// falls short, the level with the most candidates is used, the stricter one
// on ties; the result may be empty.
func (m *Matcher) FindCandidates(ctx context.Context, src model.Product) (Candidates, error) {
	var best Candidates
	for _, lvl := range m.policy {
		crit, ok := criteriaFor(src, lvl)
		if !ok {
			// the source itself lacks an attribute this level requires
			continue
		}
		rows, err := m.finder.FindCandidates(ctx, crit)
		if err != nil {
			return Candidates{}, err
		}
		if len(m.owners) > 0 {
			rows = slices.DeleteFunc(rows, func(c model.Product) bool {
				_, dup := m.owners[c.ID]
				return dup
			})
		}
		got := Candidates{Level: lvl.Name, Products: filterCandidates(src, lvl, rows)}
		if len(got.Products) >= m.min {
			return got, nil
		}
		if best.Level == "" || len(got.Products) > len(best.Products) {
			best = got
		}
	}
	return best, nil
}

func criteriaFor(src model.Product, lvl model.MatchLevel) (model.Criteria, bool) {
	c := model.Criteria{Level: lvl.Name, Equal: make(map[model.Attribute]string, len(lvl.Attributes))}
	for _, a := range lvl.Attributes {
		if a == model.AttrSize {
			if !src.Size.Valid {
				return c, false
			}
			c.Size = src.Size
			c.NeedSize = true
			continue
		}
		v, ok := src.Attr(a)
		if !ok {
			return c, false
		}
		c.Equal[a] = v
	}
	return c, true
}

// filterCandidates applies the level's attributes and the unconditional
// exclusions, dedupes by barcode and orders by barcode.
func filterCandidates(src model.Product, lvl model.MatchLevel, rows []model.Product) []model.Product {
	srcBarcode, _ := utils.NormalizeBarcode(src.Barcode)
	srcCode := src.ExternalCode()

	seen := make(map[string]int, len(rows))
	out := make([]model.Product, 0, len(rows))
	for _, c := range rows {
		if c.ID == src.ID {
			continue
		}
		barcode, ok := utils.NormalizeBarcode(c.Barcode)
		if !ok || barcode == srcBarcode {
			continue
		}
		if c.Stock <= 0 {
			continue
		}
		code := c.ExternalCode()
		if code == "" || code == srcCode {
			continue
		}
		if !matchesLevel(src, c, lvl) {
			continue
		}
		c.Barcode = barcode
		if i, dup := seen[barcode]; dup {
			// штрихкод принадлежит последнему импорту
			if c.Supersedes(out[i]) {
				out[i] = c
			}
			continue
		}
		seen[barcode] = len(out)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out
}

func matchesLevel(src, c model.Product, lvl model.MatchLevel) bool {
	for _, a := range lvl.Attributes {
		if a == model.AttrSize {
			if !src.Size.Equal(c.Size) {
				return false
			}
			continue
		}
		sv, _ := src.Attr(a)
		cv, ok := c.Attr(a)
		if !ok || sv != cv {
			return false
		}
	}
	return true
}
