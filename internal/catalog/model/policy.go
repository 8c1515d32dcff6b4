package model

import (
	"fmt"
	"runtime"
)

// Attribute names a Product attribute usable in a match level.
type Attribute string

const (
	AttrType          Attribute = "type"
	AttrGender        Attribute = "gender"
	AttrBrand         Attribute = "brand"
	AttrSize          Attribute = "size"
	AttrSeason        Attribute = "season"
	AttrMaterial      Attribute = "material"
	AttrFastener      Attribute = "fastener"
	AttrColor         Attribute = "color"
	AttrLastPrimary   Attribute = "last_primary"
	AttrLastSecondary Attribute = "last_secondary"
	AttrLastTertiary  Attribute = "last_tertiary"
)

var knownAttributes = map[Attribute]bool{
	AttrType: true, AttrGender: true, AttrBrand: true, AttrSize: true,
	AttrSeason: true, AttrMaterial: true, AttrFastener: true, AttrColor: true,
	AttrLastPrimary: true, AttrLastSecondary: true, AttrLastTertiary: true,
}

// MatchLevel: один уровень политики: атрибуты, которые должны совпасть точно.
// An empty attribute list is an unrestricted level.
type MatchLevel struct {
	Name       string      `json:"name" mapstructure:"name"`
	Attributes []Attribute `json:"attributes" mapstructure:"attributes"`
}

// MatchLevelPolicy is ordered strict → loose.
type MatchLevelPolicy []MatchLevel

// DefaultPolicy: шесть уровней от строгого к самому свободному.
func DefaultPolicy() MatchLevelPolicy {
	return MatchLevelPolicy{
		{Name: "exact", Attributes: []Attribute{AttrType, AttrGender, AttrBrand, AttrSize, AttrSeason}},
		{Name: "brand_size", Attributes: []Attribute{AttrType, AttrGender, AttrBrand, AttrSize}},
		{Name: "season_size", Attributes: []Attribute{AttrType, AttrGender, AttrSeason, AttrSize}},
		{Name: "size", Attributes: []Attribute{AttrType, AttrGender, AttrSize}},
		{Name: "brand", Attributes: []Attribute{AttrType, AttrGender, AttrBrand}},
		{Name: "category", Attributes: []Attribute{AttrType, AttrGender}},
	}
}

// ScoringWeights: константы эвристики оценки.
type ScoringWeights struct {
	Base                  float64 `json:"base" mapstructure:"base"`
	BrandDiffBonus        float64 `json:"brandDiffBonus" mapstructure:"brand_diff_bonus"`
	SizeExactBonus        float64 `json:"sizeExactBonus" mapstructure:"size_exact_bonus"`
	SizeCloseBonus        float64 `json:"sizeCloseBonus" mapstructure:"size_close_bonus"`
	SizeCloseRange        float64 `json:"sizeCloseRange" mapstructure:"size_close_range"`
	SizeFarPenalty        float64 `json:"sizeFarPenalty" mapstructure:"size_far_penalty"`
	SizeMissingPenalty    float64 `json:"sizeMissingPenalty" mapstructure:"size_missing_penalty"`
	SeasonMatchBonus      float64 `json:"seasonMatchBonus" mapstructure:"season_match_bonus"`
	SeasonMismatchPenalty float64 `json:"seasonMismatchPenalty" mapstructure:"season_mismatch_penalty"`
	MaterialBonus         float64 `json:"materialBonus" mapstructure:"material_bonus"`
	FastenerBonus         float64 `json:"fastenerBonus" mapstructure:"fastener_bonus"`
	ColorBonus            float64 `json:"colorBonus" mapstructure:"color_bonus"`
	LastPrimaryBonus      float64 `json:"lastPrimaryBonus" mapstructure:"last_primary_bonus"`
	LastSecondaryBonus    float64 `json:"lastSecondaryBonus" mapstructure:"last_secondary_bonus"`
	LastTertiaryBonus     float64 `json:"lastTertiaryBonus" mapstructure:"last_tertiary_bonus"`
	LastMissMultiplier    float64 `json:"lastMissMultiplier" mapstructure:"last_miss_multiplier"`
	StockHighBonus        float64 `json:"stockHighBonus" mapstructure:"stock_high_bonus"`
	StockHighThreshold    float64 `json:"stockHighThreshold" mapstructure:"stock_high_threshold"`
	StockMidBonus         float64 `json:"stockMidBonus" mapstructure:"stock_mid_bonus"`
	StockMidThreshold     float64 `json:"stockMidThreshold" mapstructure:"stock_mid_threshold"`
	StockLowBonus         float64 `json:"stockLowBonus" mapstructure:"stock_low_bonus"`
	StockLowThreshold     float64 `json:"stockLowThreshold" mapstructure:"stock_low_threshold"`
	ScoreCap              float64 `json:"scoreCap" mapstructure:"score_cap"`
}

func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Base:                  100,
		BrandDiffBonus:        50,
		SizeExactBonus:        100,
		SizeCloseBonus:        40,
		SizeCloseRange:        1,
		SizeFarPenalty:        50,
		SizeMissingPenalty:    30,
		SeasonMatchBonus:      80,
		SeasonMismatchPenalty: 40,
		MaterialBonus:         40,
		FastenerBonus:         30,
		ColorBonus:            40,
		LastPrimaryBonus:      90,
		LastSecondaryBonus:    70,
		LastTertiaryBonus:     50,
		LastMissMultiplier:    0.7,
		StockHighBonus:        40,
		StockHighThreshold:    5,
		StockMidBonus:         20,
		StockMidThreshold:     2,
		StockLowBonus:         10,
		StockLowThreshold:     0,
		ScoreCap:              500,
	}
}

const (
	DefaultMinRecommendations = 8
	DefaultMaxRecommendations = 8
	DefaultBatchSize          = 1000
)

// RunConfig is loaded once per batch run and validated before anything runs.
type RunConfig struct {
	Policy             MatchLevelPolicy `json:"policy"`
	Weights            ScoringWeights   `json:"weights"`
	MinRecommendations int              `json:"minRecommendations"`
	MaxRecommendations int              `json:"maxRecommendations"`
	BatchSize          int              `json:"batchSize"`
	Workers            int              `json:"workers"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Policy:             DefaultPolicy(),
		Weights:            DefaultWeights(),
		MinRecommendations: DefaultMinRecommendations,
		MaxRecommendations: DefaultMaxRecommendations,
		BatchSize:          DefaultBatchSize,
		Workers:            runtime.NumCPU(),
	}
}

// Validate returns an ErrConfigValidation-wrapped error describing the first
// problem found.
func (c RunConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfigValidation, fmt.Sprintf(format, args...))
	}
	if len(c.Policy) == 0 {
		return fail("match level policy is empty")
	}
	names := make(map[string]bool, len(c.Policy))
	for i, lvl := range c.Policy {
		if lvl.Name == "" {
			return fail("match level %d has no name", i)
		}
		if names[lvl.Name] {
			return fail("duplicate match level %q", lvl.Name)
		}
		names[lvl.Name] = true
		seen := make(map[Attribute]bool, len(lvl.Attributes))
		for _, a := range lvl.Attributes {
			if !knownAttributes[a] {
				return fail("match level %q: unknown attribute %q", lvl.Name, a)
			}
			if seen[a] {
				return fail("match level %q: attribute %q repeated", lvl.Name, a)
			}
			seen[a] = true
		}
	}
	if c.MinRecommendations < 1 {
		return fail("min recommendations must be >= 1, got %d", c.MinRecommendations)
	}
	if c.MaxRecommendations < 1 {
		return fail("max recommendations must be >= 1, got %d", c.MaxRecommendations)
	}
	if c.MinRecommendations > c.MaxRecommendations {
		return fail("min recommendations (%d) > max recommendations (%d)", c.MinRecommendations, c.MaxRecommendations)
	}
	if c.BatchSize < 1 {
		return fail("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fail("workers must be >= 1, got %d", c.Workers)
	}
	return c.Weights.validate(fail)
}

func (w ScoringWeights) validate(fail func(string, ...any) error) error {
	if w.ScoreCap <= 0 {
		return fail("score cap must be > 0")
	}
	if w.Base < 0 || w.Base > w.ScoreCap {
		return fail("base score %v outside [0, %v]", w.Base, w.ScoreCap)
	}
	if w.LastMissMultiplier < 0 || w.LastMissMultiplier > 1 {
		return fail("last miss multiplier %v outside [0, 1]", w.LastMissMultiplier)
	}
	if w.SizeCloseRange < 0 {
		return fail("size close range must be >= 0")
	}
	if !(w.StockHighThreshold >= w.StockMidThreshold && w.StockMidThreshold >= w.StockLowThreshold) {
		return fail("stock thresholds must be ordered high >= mid >= low")
	}
	return nil
}

// Criteria is what the matcher asks the catalog for: exact equality on the
// categorical attributes of one level. Size equality is numeric and checked
// by the matcher itself; implementations may ignore it.
type Criteria struct {
	Level    string
	Equal    map[Attribute]string
	Size     Size
	NeedSize bool
}
