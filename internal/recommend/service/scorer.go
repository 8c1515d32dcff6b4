package service

import (
	"fmt"
	"math"
	"sort"

	"marketlink-service/internal/catalog/model"
)

// Scorer: эвристика похожести пары (исходный товар, кандидат).
// Pure and deterministic: identical inputs give an identical score and
// explanation.
type Scorer struct {
	w model.ScoringWeights
}

func NewScorer(w model.ScoringWeights) *Scorer {
	return &Scorer{w: w}
}

// Score computes the bounded score and its explanation.
//
// Type or gender mismatch is a hard zero. Otherwise: base, brand diversity
// bonus, size, season, material/fastener/color, last tiers (first hit wins,
// a miss multiplies everything accumulated so far), then the stock bonus,
// then the clamp to [0, cap].
func (s *Scorer) Score(src, c model.Product) (float64, model.Explanation) {
	w := s.w
	e := model.Explanation{Base: w.Base}

	if src.Type != c.Type {
		e.Rejected = fmt.Sprintf("type mismatch (%s / %s)", src.Type, c.Type)
		return 0, e
	}
	if src.Gender != c.Gender {
		e.Rejected = fmt.Sprintf("gender mismatch (%s / %s)", src.Gender, c.Gender)
		return 0, e
	}

	score := w.Base
	add := func(name string, delta float64, note string) {
		score += delta
		e.Add(name, delta, note)
	}

	if src.Brand != "" && c.Brand != "" && src.Brand != c.Brand {
		add("brand_diff", w.BrandDiffBonus, src.Brand+" / "+c.Brand)
	}

	switch {
	case !src.Size.Valid || !c.Size.Valid:
		add("size_missing", -w.SizeMissingPenalty, sizeNote(src.Size, c.Size))
	case src.Size.Value == c.Size.Value:
		add("size_exact", w.SizeExactBonus, sizeNote(src.Size, c.Size))
	case math.Abs(src.Size.Value-c.Size.Value) <= w.SizeCloseRange:
		add("size_close", w.SizeCloseBonus, sizeNote(src.Size, c.Size))
	default:
		add("size_far", -w.SizeFarPenalty, sizeNote(src.Size, c.Size))
	}

	if src.Season != "" && c.Season != "" {
		if src.Season == c.Season {
			add("season_match", w.SeasonMatchBonus, src.Season)
		} else {
			add("season_mismatch", -w.SeasonMismatchPenalty, src.Season+" / "+c.Season)
		}
	}

	if bothEqual(src.Material, c.Material) {
		add("material_match", w.MaterialBonus, src.Material)
	}
	if bothEqual(src.Fastener, c.Fastener) {
		add("fastener_match", w.FastenerBonus, src.Fastener)
	}
	if bothEqual(src.Color, c.Color) {
		add("color_match", w.ColorBonus, src.Color)
	}

	tiers := [3]struct {
		name  string
		bonus float64
	}{
		{"last_primary", w.LastPrimaryBonus},
		{"last_secondary", w.LastSecondaryBonus},
		{"last_tertiary", w.LastTertiaryBonus},
	}
	hit := false
	for i, t := range tiers {
		if bothEqual(src.Lasts[i], c.Lasts[i]) {
			add(t.name, t.bonus, src.Lasts[i])
			hit = true
			break
		}
	}
	if !hit {
		score *= w.LastMissMultiplier
		e.Multiply("last_none", w.LastMissMultiplier, "no last tier matches")
	}

	switch {
	case c.Stock > w.StockHighThreshold:
		add("stock_high", w.StockHighBonus, stockNote(c.Stock))
	case c.Stock > w.StockMidThreshold:
		add("stock_mid", w.StockMidBonus, stockNote(c.Stock))
	case c.Stock > w.StockLowThreshold:
		add("stock_low", w.StockLowBonus, stockNote(c.Stock))
	}

	if score > w.ScoreCap {
		score = w.ScoreCap
		e.Clamped = true
	}
	if score < 0 {
		score = 0
		e.Clamped = true
	}
	score = math.Round(score*100) / 100
	e.Final = score
	return score, e
}

func bothEqual(a, b string) bool { return a != "" && a == b }

func sizeNote(a, b model.Size) string {
	return sizeLabel(a) + " / " + sizeLabel(b)
}

func sizeLabel(s model.Size) string {
	if !s.Valid {
		if s.Raw != "" {
			return "unparseable " + s.Raw
		}
		return "none"
	}
	return fmt.Sprintf("%g", s.Value)
}

func stockNote(v float64) string { return fmt.Sprintf("stock %g", v) }

// Scored is one scored candidate.
type Scored struct {
	Product     model.Product
	Score       float64
	Explanation model.Explanation
}

// Rank sorts by score desc, then candidate stock desc, then barcode asc, and
// keeps at most limit entries. The order is total, so reruns are
// byte-identical.
func Rank(scored []Scored, limit int) []Scored {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Product.Stock != b.Product.Stock {
			return a.Product.Stock > b.Product.Stock
		}
		return a.Product.Barcode < b.Product.Barcode
	})
	if limit >= 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
