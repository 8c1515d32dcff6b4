package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"marketlink-service/internal/catalog/model"
)

// ClearRecommendations drops every recommendation row and resets the derived
// payload on all products.
func (s *Store) ClearRecommendations(ctx context.Context) error {
	return s.inTx(ctx, "clear recommendations", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE products SET recommendations_payload = '[]' WHERE recommendations_payload <> '[]'`)
		return err
	})
}

// ReplaceRecommendations rewrites the rows of one source barcode and the
// source product's payload in a single transaction, so readers never see a
// half-written list.
func (s *Store) ReplaceRecommendations(ctx context.Context, sourceBarcode string, productID int64, recs []model.Recommendation) error {
	payload := make([]string, len(recs))
	for i, r := range recs {
		payload[i] = r.RecommendedBarcode
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return storageErr("encode payload", err)
	}

	return s.inTx(ctx, "replace recommendations "+sourceBarcode, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations WHERE source_barcode = ?`, sourceBarcode); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO recommendations (source_barcode, rank, recommended_barcode, score, level, explanation)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range recs {
			expl, err := json.Marshal(r.Explanation)
			if err != nil {
				return fmt.Errorf("encode explanation: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, sourceBarcode, r.Rank, r.RecommendedBarcode, r.Score, r.Level, string(expl)); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE products SET recommendations_payload = ? WHERE id = ?`, string(payloadJSON), productID)
		return err
	})
}

// Recommendations returns the ordered list for a normalized source barcode.
func (s *Store) Recommendations(ctx context.Context, sourceBarcode string) ([]model.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_barcode, rank, recommended_barcode, score, level, explanation
		FROM recommendations WHERE source_barcode = ? ORDER BY rank`, sourceBarcode)
	if err != nil {
		return nil, storageErr("recommendations", err)
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var (
			r    model.Recommendation
			expl string
		)
		if err := rows.Scan(&r.SourceBarcode, &r.Rank, &r.RecommendedBarcode, &r.Score, &r.Level, &expl); err != nil {
			return nil, storageErr("recommendations: scan", err)
		}
		if err := json.Unmarshal([]byte(expl), &r.Explanation); err != nil {
			return nil, storageErr("recommendations: explanation", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recommendations", err)
	}
	return out, nil
}

func (s *Store) CountRecommendations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recommendations`).Scan(&n); err != nil {
		return 0, storageErr("count recommendations", err)
	}
	return n, nil
}
