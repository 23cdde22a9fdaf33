package store

import (
	"context"
	"database/sql"
	"errors"
)

// Review is a row in the gost_reviews table.
type Review struct {
	DocumentID int64  `json:"document_id"`
	Verdict    string `json:"verdict"`
	ReportText string `json:"report_text"`
	Model      string `json:"model,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// SaveReview stores the review of a document, replacing an earlier one.
func (s *Store) SaveReview(ctx context.Context, r Review) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gost_reviews (document_id, verdict, report_text, model)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			verdict = excluded.verdict,
			report_text = excluded.report_text,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP
	`, r.DocumentID, r.Verdict, r.ReportText, nullString(r.Model))
	return wrap("save review", err)
}

// GetReview returns the review of a document.
func (s *Store) GetReview(ctx context.Context, documentID int64) (*Review, error) {
	r := &Review{}
	var text, modelName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, verdict, report_text, model, created_at, updated_at
		FROM gost_reviews WHERE document_id = ?
	`, documentID).Scan(&r.DocumentID, &r.Verdict, &text, &modelName, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get review", err)
	}
	r.ReportText, r.Model = text.String, modelName.String
	return r, nil
}
