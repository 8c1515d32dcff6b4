package model

import (
	"fmt"
	"time"
)

type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

func (s RunState) Terminal() bool { return s == RunCompleted || s == RunFailed }

type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// ProgressEvent: событие прогресса для подписчиков.
type ProgressEvent struct {
	Percent int            `json:"percent"`
	Message string         `json:"message"`
	Status  ProgressStatus `json:"status"`
}

func (e ProgressEvent) Terminal() bool { return e.Status != ProgressRunning }

// Reason classifies the outcome of one source product.
type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonMissingBarcode      Reason = "missing_barcode"
	ReasonMissingExternalCode Reason = "missing_external_code"
	ReasonMissingSize         Reason = "missing_size"
	ReasonNoCandidates        Reason = "no_candidates"
	ReasonDuplicateBarcode    Reason = "duplicate_barcode"
	ReasonOther               Reason = "other"
)

// Diagnostic attributes a skipped product to its barcode/external code.
type Diagnostic struct {
	ProductID    int64  `json:"productId"`
	Barcode      string `json:"barcode,omitempty"`
	ExternalCode string `json:"externalCode,omitempty"`
	Reason       Reason `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// RunStats: накопленная статистика прогона.
type RunStats struct {
	Total                  int            `json:"total"`
	Processed              int            `json:"processed"`
	WithRecommendations    int            `json:"withRecommendations"`
	RecommendationsWritten int            `json:"recommendationsWritten"`
	Skipped                map[Reason]int `json:"skipped"`
	Levels                 map[string]int `json:"levels"`
	Diagnostics            []Diagnostic   `json:"diagnostics,omitempty"`
	SizeWarnings           int            `json:"sizeWarnings,omitempty"`
	DiagnosticsDropped     int            `json:"diagnosticsDropped,omitempty"`
	Partial                bool           `json:"partial,omitempty"`
}

func NewRunStats(total int) RunStats {
	return RunStats{
		Total:   total,
		Skipped: make(map[Reason]int),
		Levels:  make(map[string]int),
	}
}

// Errors is the number of skipped products, whatever the reason.
func (s RunStats) Errors() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Percent of processed products; an empty catalog is 100% done.
func (s RunStats) Percent() int {
	if s.Total <= 0 {
		return 100
	}
	p := s.Processed * 100 / s.Total
	if p > 100 {
		p = 100
	}
	return p
}

func (s RunStats) Message() string {
	return fmt.Sprintf("processed %d/%d, with recommendations %d, written %d, skipped %d (no barcode %d, no external code %d, no size %d, no candidates %d, duplicate barcode %d, other %d)",
		s.Processed, s.Total, s.WithRecommendations, s.RecommendationsWritten, s.Errors(),
		s.Skipped[ReasonMissingBarcode], s.Skipped[ReasonMissingExternalCode], s.Skipped[ReasonMissingSize],
		s.Skipped[ReasonNoCandidates], s.Skipped[ReasonDuplicateBarcode], s.Skipped[ReasonOther])
}

// Clone returns a deep copy safe to hand out while the run keeps mutating.
func (s RunStats) Clone() RunStats {
	c := s
	c.Skipped = make(map[Reason]int, len(s.Skipped))
	for k, v := range s.Skipped {
		c.Skipped[k] = v
	}
	c.Levels = make(map[string]int, len(s.Levels))
	for k, v := range s.Levels {
		c.Levels[k] = v
	}
	c.Diagnostics = append([]Diagnostic(nil), s.Diagnostics...)
	return c
}

// Summary is Clone without the diagnostics list.
func (s RunStats) Summary() RunStats {
	c := s
	c.Diagnostics = nil
	c.Skipped = make(map[Reason]int, len(s.Skipped))
	for k, v := range s.Skipped {
		c.Skipped[k] = v
	}
	c.Levels = make(map[string]int, len(s.Levels))
	for k, v := range s.Levels {
		c.Levels[k] = v
	}
	return c
}

// RunStatus is the externally visible state of one run.
type RunStatus struct {
	ID         string        `json:"id"`
	State      RunState      `json:"state"`
	Progress   ProgressEvent `json:"progress"`
	Stats      RunStats      `json:"stats"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// LinkStats: итог пересборки таблицы связей.
type LinkStats struct {
	ListingsA      int `json:"listingsA"`
	ListingsB      int `json:"listingsB"`
	MissingBarcode int `json:"missingBarcode"`
	Duplicates     int `json:"duplicates"`
	Linked         int `json:"linked"`
	Replaced       int `json:"replaced"`
	Conflicts      int `json:"conflicts"`
	Unmatched      int `json:"unmatched"`
}
