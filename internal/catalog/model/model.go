package model

import (
	"sort"
	"time"

	"marketlink-service/internal/utils"
)

// Size: размер товара. Valid=false когда размер пустой или не число;
// Raw хранит исходную строку для диагностики.
type Size struct {
	Raw   string  `json:"raw,omitempty"`
	Value float64 `json:"value,omitempty"`
	Valid bool    `json:"valid"`
}

// NewSize parses raw via utils.ParseSize. The error is returned for
// diagnostics only: an unparseable size is still a usable (absent) Size.
func NewSize(raw string) (Size, error) {
	v, err := utils.ParseSize(raw)
	if err != nil {
		return Size{Raw: raw}, err
	}
	return Size{Raw: raw, Value: v, Valid: true}, nil
}

// Equal is numeric equality; an absent size equals nothing.
func (s Size) Equal(o Size) bool {
	return s.Valid && o.Valid && s.Value == o.Value
}

// Product: запись рабочего каталога одного маркетплейса.
// Empty strings mean "absent" for every categorical attribute.
type Product struct {
	ID            int64     `json:"id"`
	ExternalCodes []string  `json:"externalCodes"`
	Barcode       string    `json:"barcode,omitempty"`
	Type          string    `json:"type,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Season        string    `json:"season,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Material      string    `json:"material,omitempty"`
	Fastener      string    `json:"fastener,omitempty"`
	Color         string    `json:"color,omitempty"`
	Size          Size      `json:"size"`
	Stock         float64   `json:"stock"`
	Lasts         [3]string `json:"lasts"` // primary, secondary, tertiary
	SizeMapCode   string    `json:"sizeMapCode,omitempty"`
	ImportedAt    time.Time `json:"importedAt"`
}

// Supersedes reports whether p owns a barcode it shares with o: the later
// import wins, equal timestamps go to the smaller ID.
func (p Product) Supersedes(o Product) bool {
	if !p.ImportedAt.Equal(o.ImportedAt) {
		return p.ImportedAt.After(o.ImportedAt)
	}
	return p.ID < o.ID
}

// ExternalCode resolves the product's external identity: the size map wins
// (latest import), otherwise the smallest of the product's own codes.
func (p Product) ExternalCode() string {
	if p.SizeMapCode != "" {
		return p.SizeMapCode
	}
	best := ""
	for _, c := range p.ExternalCodes {
		if c == "" {
			continue
		}
		if best == "" || c < best {
			best = c
		}
	}
	return best
}

// Attr returns the value of a categorical attribute. Size and unknown
// attributes report ok=false.
func (p Product) Attr(a Attribute) (string, bool) {
	var v string
	switch a {
	case AttrType:
		v = p.Type
	case AttrGender:
		v = p.Gender
	case AttrBrand:
		v = p.Brand
	case AttrSeason:
		v = p.Season
	case AttrMaterial:
		v = p.Material
	case AttrFastener:
		v = p.Fastener
	case AttrColor:
		v = p.Color
	case AttrLastPrimary:
		v = p.Lasts[0]
	case AttrLastSecondary:
		v = p.Lasts[1]
	case AttrLastTertiary:
		v = p.Lasts[2]
	default:
		return "", false
	}
	return v, v != ""
}

// SortedCodes returns a sorted copy of the external codes (ordered set
// semantics: duplicates dropped).
func (p Product) SortedCodes() []string {
	seen := make(map[string]struct{}, len(p.ExternalCodes))
	out := make([]string, 0, len(p.ExternalCodes))
	for _, c := range p.ExternalCodes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SizeMapEntry: штрихкод → внешний код + размерная метка.
type SizeMapEntry struct {
	Barcode      string    `json:"barcode"`
	ExternalCode string    `json:"externalCode"`
	SizeLabel    string    `json:"sizeLabel"`
	ImportedAt   time.Time `json:"importedAt"`
}

type Marketplace string

const (
	MarketplaceA Marketplace = "A"
	MarketplaceB Marketplace = "B"
)

// Listing: карточка товара на одной из площадок, источник для связывания.
type Listing struct {
	Marketplace Marketplace `json:"marketplace"`
	SKU         string      `json:"sku"`
	Barcode     string      `json:"barcode"`
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	ImportedAt  time.Time   `json:"importedAt"`
}

// Direction of a link lookup: AtoB means the given SKU belongs to marketplace A.
type Direction int

const (
	AtoB Direction = iota
	BtoA
)

func (d Direction) String() string {
	if d == BtoA {
		return "b->a"
	}
	return "a->b"
}

// MarketplaceLink: связь SKU площадки A ↔ SKU площадки B по общему штрихкоду.
type MarketplaceLink struct {
	ID              int64      `json:"id"`
	Barcode         string     `json:"barcode"`
	SKUA            string     `json:"skuA"`
	SKUB            string     `json:"skuB"`
	Confidence      float64    `json:"confidence"`
	TitleSimilarity float64    `json:"titleSimilarity"`
	CategoryMatch   bool       `json:"categoryMatch"`
	SourceTimestamp time.Time  `json:"sourceTimestamp"`
	CreatedAt       time.Time  `json:"createdAt"`
	SupersededAt    *time.Time `json:"supersededAt,omitempty"`
}

// Counterpart returns the SKU on the other side of the link.
func (l MarketplaceLink) Counterpart(d Direction) string {
	if d == BtoA {
		return l.SKUA
	}
	return l.SKUB
}

// Recommendation: одна строка рекомендаций для исходного штрихкода.
type Recommendation struct {
	SourceBarcode      string      `json:"sourceBarcode"`
	RecommendedBarcode string      `json:"recommendedBarcode"`
	Score              float64     `json:"score"`
	Rank               int         `json:"rank"`
	Level              string      `json:"level"`
	Explanation        Explanation `json:"explanation"`
}
