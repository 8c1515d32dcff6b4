package fileio

import (
	"fmt"
	"strings"
	"time"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/utils"
)

// RowIssue: строка, пропущенная при разборе листа.
type RowIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ToProducts maps a catalog sheet. Rows without any external code are
// skipped; a missing barcode or an unparseable size is kept (the batch run
// accounts for those).
func ToProducts(sh *Sheet, importedAt time.Time) ([]model.Product, []RowIssue, error) {
	cols, err := ProductLayout.Resolve(sh.Headers)
	if err != nil {
		return nil, nil, err
	}
	get := getter(cols)

	var (
		out    []model.Product
		issues []RowIssue
	)
	for _, row := range sh.Rows {
		if looksLikeHeader(row.Cells) {
			continue
		}
		codes := splitCodes(get(row, FieldExternalCode))
		if len(codes) == 0 {
			issues = append(issues, RowIssue{Line: row.Line, Reason: model.ErrMissingExternalCode.Error()})
			continue
		}
		size, _ := model.NewSize(get(row, FieldSize))
		stock, _ := utils.ParseFloatRU(get(row, FieldStock))
		if stock < 0 {
			stock = 0
		}
		out = append(out, model.Product{
			ExternalCodes: codes,
			Barcode:       get(row, FieldBarcode),
			Type:          get(row, FieldType),
			Gender:        get(row, FieldGender),
			Season:        get(row, FieldSeason),
			Brand:         get(row, FieldBrand),
			Material:      get(row, FieldMaterial),
			Fastener:      get(row, FieldFastener),
			Color:         get(row, FieldColor),
			Size:          size,
			Stock:         stock,
			Lasts:         [3]string{get(row, FieldLastPrimary), get(row, FieldLastSecondary), get(row, FieldLastTertiary)},
			ImportedAt:    importedAt,
		})
	}
	return out, issues, nil
}

func ToSizeMap(sh *Sheet, importedAt time.Time) ([]model.SizeMapEntry, []RowIssue, error) {
	cols, err := SizeMapLayout.Resolve(sh.Headers)
	if err != nil {
		return nil, nil, err
	}
	get := getter(cols)

	var (
		out    []model.SizeMapEntry
		issues []RowIssue
	)
	for _, row := range sh.Rows {
		if looksLikeHeader(row.Cells) {
			continue
		}
		e := model.SizeMapEntry{
			Barcode:      get(row, FieldBarcode),
			ExternalCode: get(row, FieldExternalCode),
			SizeLabel:    get(row, FieldSize),
			ImportedAt:   importedAt,
		}
		switch {
		case e.Barcode == "":
			issues = append(issues, RowIssue{Line: row.Line, Reason: model.ErrMissingBarcode.Error()})
		case e.ExternalCode == "":
			issues = append(issues, RowIssue{Line: row.Line, Reason: model.ErrMissingExternalCode.Error()})
		default:
			out = append(out, e)
		}
	}
	return out, issues, nil
}

// ToListings maps one marketplace's listing sheet. Listings without barcode
// are kept: the linker counts them.
func ToListings(sh *Sheet, mp model.Marketplace, importedAt time.Time) ([]model.Listing, []RowIssue, error) {
	cols, err := ListingLayout.Resolve(sh.Headers)
	if err != nil {
		return nil, nil, err
	}
	get := getter(cols)

	var (
		out    []model.Listing
		issues []RowIssue
	)
	for _, row := range sh.Rows {
		if looksLikeHeader(row.Cells) {
			continue
		}
		sku := get(row, FieldSKU)
		if sku == "" {
			issues = append(issues, RowIssue{Line: row.Line, Reason: "missing sku"})
			continue
		}
		out = append(out, model.Listing{
			Marketplace: mp,
			SKU:         sku,
			Barcode:     get(row, FieldBarcode),
			Title:       get(row, FieldTitle),
			Category:    get(row, FieldCategory),
			ImportedAt:  importedAt,
		})
	}
	return out, issues, nil
}

func getter(cols map[Field]string) func(Row, Field) string {
	return func(r Row, f Field) string {
		key, ok := cols[f]
		if !ok {
			return ""
		}
		return strings.TrimSpace(r.Cells[key])
	}
}

// splitCodes: в одной ячейке может быть несколько кодов через ',' или ';'.
func splitCodes(s string) []string {
	var out []string
	for _, c := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IssueSummary renders up to n issues for logs.
func IssueSummary(issues []RowIssue, n int) string {
	var b strings.Builder
	for i, is := range issues {
		if i == n {
			fmt.Fprintf(&b, " …and %d more", len(issues)-n)
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "line %d: %s", is.Line, is.Reason)
	}
	return b.String()
}
