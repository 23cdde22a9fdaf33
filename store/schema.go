package store

// schemaSQL is the base DDL. Later changes go into migrations.
const schemaSQL = `
-- Uploaded documents with their parsed structure and latest check outcome
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    file_size INTEGER DEFAULT 0,
    total_pages INTEGER DEFAULT 0,
    title TEXT,
    author TEXT,
    structure_json JSON,
    rating REAL,
    gost_check_completed INTEGER NOT NULL DEFAULT 0,
    check_date DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per page; image paths are filled in once pages are rasterized
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    width REAL NOT NULL,
    height REAL NOT NULL,
    image_path TEXT,
    UNIQUE(document_id, page_number)
);

-- Rule violations of the latest check, numbered across the whole report
CREATE TABLE IF NOT EXISTS document_errors (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    error_number INTEGER NOT NULL,
    rule_code TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('error', 'warning', 'info')),
    message TEXT NOT NULL,
    bbox_x0 REAL,
    bbox_y0 REAL,
    bbox_x1 REAL,
    bbox_y1 REAL,
    block_id TEXT,
    extra_data JSON
);

-- Audit trail of check runs
CREATE TABLE IF NOT EXISTS check_runs (
    id TEXT PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    rating REAL NOT NULL,
    total_errors INTEGER NOT NULL,
    saved_errors INTEGER NOT NULL,
    success INTEGER NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
);

-- Vision review verdicts, one per document
CREATE TABLE IF NOT EXISTS gost_reviews (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
    verdict TEXT NOT NULL,
    report_text TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);
CREATE INDEX IF NOT EXISTS idx_errors_document ON document_errors(document_id, error_number);
CREATE INDEX IF NOT EXISTS idx_errors_page ON document_errors(page_id);
CREATE INDEX IF NOT EXISTS idx_runs_document ON check_runs(document_id, started_at);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`
