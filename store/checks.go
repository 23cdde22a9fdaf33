package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/rules"
)

// ErrorRecord is a row in the document_errors table.
type ErrorRecord struct {
	ID          int64          `json:"id"`
	DocumentID  int64          `json:"document_id"`
	PageID      int64          `json:"page_id"`
	PageNumber  int            `json:"page_number"`
	ErrorNumber int            `json:"error_number"`
	RuleCode    string         `json:"rule_code"`
	RuleName    string         `json:"rule_name"`
	Severity    rules.Severity `json:"severity"`
	Message     string         `json:"message"`
	BBox        *model.BBox    `json:"bbox"`
	BlockID     string         `json:"block_id,omitempty"`
	Extra       map[string]any `json:"extra_data,omitempty"`
}

// CheckRun is a row in the check_runs table.
type CheckRun struct {
	ID          string  `json:"id"`
	DocumentID  int64   `json:"document_id"`
	Rating      float64 `json:"rating"`
	TotalErrors int     `json:"total_errors"`
	SavedErrors int     `json:"saved_errors"`
	Success     bool    `json:"success"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  string  `json:"finished_at"`
	// Results are the per-rule outcomes of the run, including errors that
	// were not stored against a page. Nil for runs saved before they were
	// recorded.
	Results []rules.RuleResult `json:"results,omitempty"`
}

var _ rules.ResultStore = (*Store)(nil)

// SaveCheck replaces the stored errors of a document with the numbered
// errors of rec, updates the document's rating and check date, and logs a
// check run with the full per-rule results, all in one transaction. Errors
// whose page does not exist are kept only in the run's results. Any failure
// rolls everything back and returns a *PersistenceError.
func (s *Store) SaveCheck(ctx context.Context, rec rules.CheckRecord) (string, error) {
	runID := uuid.NewString()
	saved := 0

	results, err := json.Marshal(rec.Report.Results)
	if err != nil {
		return "", wrap("save check", fmt.Errorf("encoding results: %w", err))
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET rating = ?, gost_check_completed = 1, check_date = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, rec.Report.Rating, rec.FinishedAt.UTC().Format(time.RFC3339), rec.DocumentID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("document %d: %w", rec.DocumentID, ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM document_errors WHERE document_id = ?", rec.DocumentID); err != nil {
			return err
		}

		pages, err := pageIDs(ctx, tx, rec.DocumentID)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_errors (document_id, page_id, error_number, rule_code, rule_name,
				severity, message, bbox_x0, bbox_y0, bbox_x1, bbox_y1, block_id, extra_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range rec.Errors {
			pageID, ok := pages[e.PageNumber]
			if !ok {
				slog.Debug("store: skipping error without page",
					"document_id", rec.DocumentID, "page", e.PageNumber, "rule", e.RuleCode, "number", e.Number)
				continue
			}
			var x0, y0, x1, y1 sql.NullFloat64
			if e.BBox != nil {
				x0 = sql.NullFloat64{Float64: e.BBox.X0, Valid: true}
				y0 = sql.NullFloat64{Float64: e.BBox.Y0, Valid: true}
				x1 = sql.NullFloat64{Float64: e.BBox.X1, Valid: true}
				y1 = sql.NullFloat64{Float64: e.BBox.Y1, Valid: true}
			}
			var extra sql.NullString
			if len(e.Extra) > 0 {
				data, err := json.Marshal(e.Extra)
				if err != nil {
					return fmt.Errorf("encoding extra data of error %d: %w", e.Number, err)
				}
				extra = sql.NullString{String: string(data), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, rec.DocumentID, pageID, e.Number, e.RuleCode, e.RuleName,
				string(e.Severity), e.Message, x0, y0, x1, y1, nullString(e.BlockID), extra); err != nil {
				return fmt.Errorf("inserting error %d: %w", e.Number, err)
			}
			saved++
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO check_runs (id, document_id, rating, total_errors, saved_errors, success, started_at, finished_at, results)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, rec.DocumentID, rec.Report.Rating, rec.Report.TotalErrors, saved, rec.Report.Success,
			rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano), string(results))
		return err
	})
	if err != nil {
		return "", wrap("save check", err)
	}

	if dropped := len(rec.Errors) - saved; dropped > 0 {
		slog.Warn("store: errors without a stored page were dropped", "document_id", rec.DocumentID, "dropped", dropped)
	}
	return runID, nil
}

func pageIDs(ctx context.Context, tx *sql.Tx, documentID int64) (map[int]int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, page_number FROM pages WHERE document_id = ?", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[n] = id
	}
	return out, rows.Err()
}

const errorQuery = `
	SELECT e.id, e.document_id, e.page_id, p.page_number, e.error_number, e.rule_code, e.rule_name,
		e.severity, e.message, e.bbox_x0, e.bbox_y0, e.bbox_x1, e.bbox_y1, e.block_id, e.extra_data
	FROM document_errors e JOIN pages p ON p.id = e.page_id
`

// Errors returns the stored errors of a document ordered by number.
func (s *Store) Errors(ctx context.Context, documentID int64) ([]ErrorRecord, error) {
	return s.queryErrors(ctx, errorQuery+"WHERE e.document_id = ? ORDER BY e.error_number", documentID)
}

// PageErrors returns the stored errors of one page ordered by number.
func (s *Store) PageErrors(ctx context.Context, documentID int64, pageNumber int) ([]ErrorRecord, error) {
	return s.queryErrors(ctx,
		errorQuery+"WHERE e.document_id = ? AND p.page_number = ? ORDER BY e.error_number",
		documentID, pageNumber)
}

func (s *Store) queryErrors(ctx context.Context, query string, args ...any) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list errors", err)
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var r ErrorRecord
		var severity string
		var x0, y0, x1, y1 sql.NullFloat64
		var blockID, extra sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.PageID, &r.PageNumber, &r.ErrorNumber,
			&r.RuleCode, &r.RuleName, &severity, &r.Message,
			&x0, &y0, &x1, &y1, &blockID, &extra); err != nil {
			return nil, wrap("list errors", err)
		}
		r.Severity = rules.Severity(severity)
		r.BlockID = blockID.String
		if x0.Valid && y0.Valid && x1.Valid && y1.Valid {
			b := model.NewBBox(x0.Float64, y0.Float64, x1.Float64, y1.Float64)
			r.BBox = &b
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &r.Extra); err != nil {
				slog.Warn("store: bad extra_data", "error_id", r.ID, "error", err)
			}
		}
		out = append(out, r)
	}
	return out, wrap("list errors", rows.Err())
}

// CheckRuns lists the check runs of a document, most recent first.
func (s *Store) CheckRuns(ctx context.Context, documentID int64) ([]CheckRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, rating, total_errors, saved_errors, success, started_at, finished_at, results
		FROM check_runs WHERE document_id = ? ORDER BY started_at DESC
	`, documentID)
	if err != nil {
		return nil, wrap("list check runs", err)
	}
	defer rows.Close()

	var out []CheckRun
	for rows.Next() {
		var r CheckRun
		var results sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Rating, &r.TotalErrors, &r.SavedErrors,
			&r.Success, &r.StartedAt, &r.FinishedAt, &results); err != nil {
			return nil, wrap("list check runs", err)
		}
		if results.Valid && results.String != "" {
			if err := json.Unmarshal([]byte(results.String), &r.Results); err != nil {
				slog.Warn("store: bad check run results", "run", r.ID, "error", err)
			}
		}
		out = append(out, r)
	}
	return out, wrap("list check runs", rows.Err())
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
