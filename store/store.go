// Package store persists documents, their pages, rule violations, check
// runs and vision reviews in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/workwise/aikor/model"
)

// ErrNotFound is returned when a document or page does not exist.
var ErrNotFound = errors.New("store: not found")

// PersistenceError wraps a failed database operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Document is a row in the documents table. The parsed structure is kept
// separately and loaded with Structure.
type Document struct {
	ID                 int64    `json:"id"`
	Path               string   `json:"path"`
	Filename           string   `json:"filename"`
	Format             string   `json:"format"`
	ContentHash        string   `json:"content_hash"`
	FileSize           int64    `json:"file_size"`
	TotalPages         int      `json:"total_pages"`
	Title              string   `json:"title,omitempty"`
	Author             string   `json:"author,omitempty"`
	Rating             *float64 `json:"rating"`
	GostCheckCompleted bool     `json:"gost_check_completed"`
	CheckDate          string   `json:"check_date,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

// Page is a row in the pages table.
type Page struct {
	ID                  int64   `json:"id"`
	DocumentID          int64   `json:"document_id"`
	PageNumber          int     `json:"page_number"`
	Width               float64 `json:"width"`
	Height              float64 `json:"height"`
	ImagePath           string  `json:"image_path,omitempty"`
	ImageWithErrorsPath string  `json:"image_with_errors_path,omitempty"`
}

// Store wraps the SQLite database for all aikor persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and applies the
// schema and pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Document operations ---

// SaveDocument records a parsed document under path, replacing any earlier
// parse of the same path. Pages are matched by number so that image paths
// and their errors survive a re-parse; pages that no longer exist are
// removed. Returns the document ID.
func (s *Store) SaveDocument(ctx context.Context, path string, doc *model.ParsedDocument) (int64, error) {
	structure, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("store: encoding structure: %w", err)
	}
	m := doc.Metadata

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (path, filename, format, content_hash, file_size, total_pages, title, author, structure_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				filename = excluded.filename,
				format = excluded.format,
				content_hash = excluded.content_hash,
				file_size = excluded.file_size,
				total_pages = excluded.total_pages,
				title = excluded.title,
				author = excluded.author,
				structure_json = excluded.structure_json,
				updated_at = CURRENT_TIMESTAMP
		`, path, m.Filename, string(m.Type), m.ContentHash, m.FileSize, len(doc.Pages),
			m.Title, m.Author, string(structure)); err != nil {
			return err
		}
		// LastInsertId is unreliable after the UPDATE branch of an upsert.
		if err := tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", path).Scan(&id); err != nil {
			return err
		}

		for _, p := range doc.Pages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pages (document_id, page_number, width, height)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(document_id, page_number) DO UPDATE SET
					width = excluded.width,
					height = excluded.height
			`, id, p.Info.PageNumber, p.Info.Width, p.Info.Height); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			"DELETE FROM pages WHERE document_id = ? AND page_number > ?", id, len(doc.Pages))
		return err
	})
	if err != nil {
		return 0, wrap("save document", err)
	}
	return id, nil
}

const documentColumns = `id, path, filename, format, content_hash, file_size, total_pages,
	title, author, rating, gost_check_completed, check_date, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	d := &Document{}
	var title, author, checkDate sql.NullString
	var rating sql.NullFloat64
	if err := row.Scan(&d.ID, &d.Path, &d.Filename, &d.Format, &d.ContentHash,
		&d.FileSize, &d.TotalPages, &title, &author, &rating,
		&d.GostCheckCompleted, &checkDate, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Title, d.Author, d.CheckDate = title.String, author.String, checkDate.String
	if rating.Valid {
		d.Rating = &rating.Float64
	}
	return d, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	return d, wrap("get document", err)
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE path = ?", path))
	return d, wrap("get document", err)
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, wrap("list documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, wrap("list documents", err)
		}
		docs = append(docs, *d)
	}
	return docs, wrap("list documents", rows.Err())
}

// Structure decodes the stored parse of a document.
func (s *Store) Structure(ctx context.Context, id int64) (*model.ParsedDocument, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT structure_json FROM documents WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("load structure", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var doc model.ParsedDocument
	if err := json.Unmarshal([]byte(raw.String), &doc); err != nil {
		return nil, fmt.Errorf("store: decoding structure of document %d: %w", id, err)
	}
	return &doc, nil
}

// DeleteDocument removes a document; pages, errors, runs and reviews
// cascade.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return wrap("delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Page operations ---

// Pages lists the pages of a document in page order.
func (s *Store) Pages(ctx context.Context, documentID int64) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, width, height, image_path, image_with_errors_path
		FROM pages WHERE document_id = ? ORDER BY page_number
	`, documentID)
	if err != nil {
		return nil, wrap("list pages", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var img, errImg sql.NullString
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.Width, &p.Height, &img, &errImg); err != nil {
			return nil, wrap("list pages", err)
		}
		p.ImagePath, p.ImageWithErrorsPath = img.String, errImg.String
		pages = append(pages, p)
	}
	return pages, wrap("list pages", rows.Err())
}

// SetPageImage records the raster image of a page.
func (s *Store) SetPageImage(ctx context.Context, documentID int64, pageNumber int, path string) error {
	return s.updatePage(ctx, "set page image",
		"UPDATE pages SET image_path = ? WHERE document_id = ? AND page_number = ?",
		path, documentID, pageNumber)
}

// SetPageErrorsImage records the rendered error overlay of a page.
func (s *Store) SetPageErrorsImage(ctx context.Context, documentID int64, pageNumber int, path string) error {
	return s.updatePage(ctx, "set errors image",
		"UPDATE pages SET image_with_errors_path = ? WHERE document_id = ? AND page_number = ?",
		sql.NullString{String: path, Valid: path != ""}, documentID, pageNumber)
}

func (s *Store) updatePage(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Stats ---

// DBStats holds row counts.
type DBStats struct {
	Documents int `json:"documents"`
	Pages     int `json:"pages"`
	Errors    int `json:"errors"`
	CheckRuns int `json:"check_runs"`
	Reviews   int `json:"reviews"`
}

// DBStats returns row counts of every table.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM pages", &stats.Pages},
		{"SELECT COUNT(*) FROM document_errors", &stats.Errors},
		{"SELECT COUNT(*) FROM check_runs", &stats.CheckRuns},
		{"SELECT COUNT(*) FROM gost_reviews", &stats.Reviews},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
