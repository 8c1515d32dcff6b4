package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"marketlink-service/internal/catalog/model"
)

// Внешний код и размер из size_map подтягиваются join'ом: справочник
// главнее собственных данных товара.
const productColumns = `
	p.id, p.external_codes, p.barcode, p.type, p.gender, p.season, p.brand,
	p.material, p.fastener, p.color,
	COALESCE(NULLIF(p.size_raw, ''), sm.size_label, ''),
	p.stock, p.last_primary, p.last_secondary, p.last_tertiary,
	COALESCE(sm.external_code, ''), p.imported_at
FROM products p
LEFT JOIN size_map sm ON sm.barcode = p.barcode AND p.barcode <> ''`

// attrColumns whitelists the columns a Criteria may filter on.
var attrColumns = map[model.Attribute]string{
	model.AttrType:          "p.type",
	model.AttrGender:        "p.gender",
	model.AttrBrand:         "p.brand",
	model.AttrSeason:        "p.season",
	model.AttrMaterial:      "p.material",
	model.AttrFastener:      "p.fastener",
	model.AttrColor:         "p.color",
	model.AttrLastPrimary:   "p.last_primary",
	model.AttrLastSecondary: "p.last_secondary",
	model.AttrLastTertiary:  "p.last_tertiary",
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, storageErr("count products", err)
	}
	return n, nil
}

func (s *Store) ProductsPage(ctx context.Context, afterID int64, limit int) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` WHERE p.id > ? ORDER BY p.id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, storageErr("products page", err)
	}
	return scanProducts(rows, "products page")
}

// DuplicateBarcodes maps every product that shares its barcode with a newer
// one to the owner of that barcode: the latest import, then the smallest id.
func (s *Store) DuplicateBarcodes(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner FROM (
			SELECT id, FIRST_VALUE(id) OVER (PARTITION BY barcode ORDER BY imported_at DESC, id ASC) AS owner
			FROM products
			WHERE barcode <> ''
		)
		WHERE id <> owner`)
	if err != nil {
		return nil, storageErr("duplicate barcodes", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var id, owner int64
		if err := rows.Scan(&id, &owner); err != nil {
			return nil, storageErr("duplicate barcodes: scan", err)
		}
		out[id] = owner
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("duplicate barcodes", err)
	}
	return out, nil
}

// FindCandidates prefilters on the categorical attributes of c; numeric size
// equality is left to the caller. Products without barcode or stock never
// qualify as candidates and are dropped here already.
func (s *Store) FindCandidates(ctx context.Context, c model.Criteria) ([]model.Product, error) {
	var (
		where = []string{"p.barcode <> ''", "p.stock > 0"}
		args  []any
	)
	attrs := make([]model.Attribute, 0, len(c.Equal))
	for a := range c.Equal {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })
	for _, a := range attrs {
		col, ok := attrColumns[a]
		if !ok {
			return nil, fmt.Errorf("%w: attribute %q is not filterable", model.ErrConfigValidation, a)
		}
		where = append(where, col+" = ?")
		args = append(args, c.Equal[a])
	}

	q := `SELECT ` + productColumns + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY p.barcode, p.id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("find candidates ("+c.Level+")", err)
	}
	return scanProducts(rows, "find candidates")
}

// Product returns the product with the given id, or nil.
func (s *Store) Product(ctx context.Context, id int64) (*model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` WHERE p.id = ?`, id)
	if err != nil {
		return nil, storageErr("product", err)
	}
	ps, err := scanProducts(rows, "product")
	if err != nil || len(ps) == 0 {
		return nil, err
	}
	return &ps[0], nil
}

// RecommendationPayload returns the derived list of recommended barcodes
// stored on the product row.
func (s *Store) RecommendationPayload(ctx context.Context, productID int64) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT recommendations_payload FROM products WHERE id = ?`, productID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("recommendation payload", err)
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, storageErr("decode recommendation payload", err)
	}
	return out, nil
}

func scanProducts(rows *sql.Rows, op string) ([]model.Product, error) {
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		var (
			p        model.Product
			codes    string
			sizeRaw  string
			imported string
		)
		if err := rows.Scan(
			&p.ID, &codes, &p.Barcode, &p.Type, &p.Gender, &p.Season, &p.Brand,
			&p.Material, &p.Fastener, &p.Color,
			&sizeRaw,
			&p.Stock, &p.Lasts[0], &p.Lasts[1], &p.Lasts[2],
			&p.SizeMapCode, &imported,
		); err != nil {
			return nil, storageErr(op+": scan", err)
		}
		if err := json.Unmarshal([]byte(codes), &p.ExternalCodes); err != nil {
			return nil, storageErr(fmt.Sprintf("%s: product %d external codes", op, p.ID), err)
		}
		// нечисловой размер считаем отсутствующим
		p.Size, _ = model.NewSize(sizeRaw)
		t, err := parseTime(imported)
		if err != nil {
			return nil, storageErr(fmt.Sprintf("%s: product %d imported_at", op, p.ID), err)
		}
		p.ImportedAt = t
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}
