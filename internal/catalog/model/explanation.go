package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Factor is one contribution to a score: an additive Delta or, when
// Multiplier is non-zero, a relative adjustment of everything accumulated so far.
type Factor struct {
	Name       string  `json:"name"`
	Delta      float64 `json:"delta,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// Explanation is the audit trail of a score.
type Explanation struct {
	Base     float64  `json:"base"`
	Factors  []Factor `json:"factors"`
	Rejected string   `json:"rejected,omitempty"` // hard filter that zeroed the score
	Clamped  bool     `json:"clamped,omitempty"`
	Final    float64  `json:"final"`
}

func (e *Explanation) Add(name string, delta float64, note string) {
	e.Factors = append(e.Factors, Factor{Name: name, Delta: delta, Note: note})
}

func (e *Explanation) Multiply(name string, m float64, note string) {
	e.Factors = append(e.Factors, Factor{Name: name, Multiplier: m, Note: note})
}

// String renders "base 100; size_exact +100 (38 = 38); last_none x0.7; = 259".
func (e Explanation) String() string {
	var b strings.Builder
	if e.Rejected != "" {
		fmt.Fprintf(&b, "rejected: %s; = 0", e.Rejected)
		return b.String()
	}
	b.WriteString("base ")
	b.WriteString(num(e.Base))
	for _, f := range e.Factors {
		b.WriteString("; ")
		b.WriteString(f.Name)
		switch {
		case f.Multiplier != 0:
			b.WriteString(" x")
			b.WriteString(num(f.Multiplier))
		case f.Delta >= 0:
			b.WriteString(" +")
			b.WriteString(num(f.Delta))
		default:
			b.WriteString(" ")
			b.WriteString(num(f.Delta))
		}
		if f.Note != "" {
			b.WriteString(" (")
			b.WriteString(f.Note)
			b.WriteString(")")
		}
	}
	if e.Clamped {
		b.WriteString("; clamped")
	}
	b.WriteString("; = ")
	b.WriteString(num(e.Final))
	return b.String()
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
