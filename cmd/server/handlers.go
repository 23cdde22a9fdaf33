package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workwise/aikor"
	"github.com/workwise/aikor/export"
	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/rules"
)

const maxUpload = 100 << 20

type handler struct {
	engine     aikor.Engine
	uploadsDir string
	maxUpload  int64
}

func newHandler(e aikor.Engine, uploadsDir string) *handler {
	return &handler{engine: e, uploadsDir: uploadsDir, maxUpload: maxUpload}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aikor.ErrDocumentNotFound), errors.Is(err, aikor.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, aikor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, aikor.ErrParsingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, aikor.ErrNoStructure):
		return http.StatusConflict
	case errors.Is(err, aikor.ErrInvalidConfig), errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, aikor.ErrVisionRequired):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("server: "+op+" failed", append(attrs, "error", err)...)
	} else {
		slog.Warn("server: "+op+" rejected", append(attrs, "error", err)...)
	}
	writeError(w, status, err.Error())
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// errNoFile is a multipart request without the "file" field.
var errNoFile = errors.New(`multipart request has no "file" field`)

// openUpload returns the multipart "file" field. A request that is not
// multipart yields a nil file and no error; any other multipart failure,
// including a body over the upload limit, is returned.
func (h *handler) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, errNoFile
	}
	return file, header, err
}

// uploadFailed answers a broken upload with 413 for an oversized body and
// 400 otherwise.
func uploadFailed(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	slog.Warn("server: upload rejected", "status", status, "error", err)
	writeError(w, status, "invalid upload: "+err.Error())
}

// storeUpload copies an uploaded file into the uploads dir.
func (h *handler) storeUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)
	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(h.uploadsDir, safeName)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

// existingFile resolves a client supplied path and requires a regular file.
func existingFile(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	return abs, true
}

// POST /parse
// Accepts a multipart upload or JSON with a file path, stores the parsed
// structure and returns the document.
func (h *handler) handleParse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	file, header, err := h.openUpload(w, r)
	if err != nil {
		uploadFailed(w, err)
		return
	}
	path := ""
	if file != nil {
		path, err = h.storeUpload(file, header)
		file.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save file")
			slog.Error("server: saving upload", "error", err)
			return
		}
	}
	if path == "" {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
			return
		}
		var ok bool
		if path, ok = existingFile(req.Path); !ok {
			writeError(w, http.StatusBadRequest, "path must be an existing file")
			return
		}
	}

	id, err := h.engine.Ingest(ctx, path)
	if err != nil {
		h.fail(w, "parse", err, "path", path)
		return
	}
	doc, err := h.engine.GetDocument(ctx, id)
	if err != nil {
		h.fail(w, "parse", err, "document_id", id)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// POST /check
func (h *handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		DocumentID int64    `json:"document_id"`
		Rules      []string `json:"rules,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.DocumentID <= 0 {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	var opts []aikor.CheckOption
	if len(req.Rules) > 0 {
		opts = append(opts, aikor.WithRules(req.Rules...))
	}
	rep, err := h.engine.Check(ctx, req.DocumentID, opts...)
	if err != nil {
		h.fail(w, "check", err, "document_id", req.DocumentID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": req.DocumentID,
		"report":      rep,
		"errors":      numbered(rep),
	})
}

type numberedError struct {
	Number   int    `json:"error_number"`
	RuleCode string `json:"rule_code"`
	RuleName string `json:"rule_name"`
	rules.RuleError
}

func numbered(rep rules.Report) []numberedError {
	ns := rules.Number(rep.Results)
	out := make([]numberedError, len(ns))
	for i, n := range ns {
		out[i] = numberedError{Number: n.Number, RuleCode: n.RuleCode, RuleName: n.RuleName, RuleError: n.RuleError}
	}
	return out
}

// POST /export/{format}
// Exports a stored document ({"document_id": n}) or an uploaded file.
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var doc *model.ParsedDocument
	file, header, err := h.openUpload(w, r)
	if err != nil {
		uploadFailed(w, err)
		return
	}
	if file != nil {
		defer file.Close()
		name := filepath.Base(header.Filename)
		doc, err = h.engine.ParseReader(ctx, file, filepath.Ext(name), name)
		if err != nil {
			h.fail(w, "export", err, "file", name)
			return
		}
	}
	if doc == nil {
		var req struct {
			DocumentID int64 `json:"document_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'document_id'")
			return
		}
		if _, err := h.engine.GetDocument(ctx, req.DocumentID); err != nil {
			h.fail(w, "export", err, "document_id", req.DocumentID)
			return
		}
		doc, err = h.engine.Store().Structure(ctx, req.DocumentID)
		if err == nil && doc == nil {
			err = aikor.ErrNoStructure
		}
		if err != nil {
			h.fail(w, "export", err, "document_id", req.DocumentID)
			return
		}
	}

	var buf bytes.Buffer
	if err := h.engine.Export(&buf, doc, string(format)); err != nil {
		h.fail(w, "export", err, "format", format)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GET /documents/{id}
func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetDocument(r.Context(), id)
	if err != nil {
		h.fail(w, "get document", err, "document_id", id)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete", err, "document_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents/{id}/errors
func (h *handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	errs, err := h.engine.Errors(r.Context(), id)
	if err != nil {
		h.fail(w, "errors", err, "document_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "errors": errs})
}

// POST /documents/{id}/pages/{n}/image
func (h *handler) handlePageImage(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	path, ok := existingFile(req.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}
	if err := h.engine.SetPageImage(r.Context(), id, n, path); err != nil {
		h.fail(w, "page image", err, "document_id", id, "page", n)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "page_number": n, "image_path": path})
}

// POST /documents/{id}/render
func (h *handler) handleRender(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	results, err := h.engine.Render(ctx, id)
	if err != nil {
		h.fail(w, "render", err, "document_id", id)
		return
	}
	type page struct {
		PageNumber int    `json:"page_number"`
		Path       string `json:"path"`
		Rendered   bool   `json:"rendered"`
		Error      string `json:"error,omitempty"`
	}
	out := make([]page, len(results))
	for i, res := range results {
		out[i] = page{PageNumber: res.Number, Path: res.Path, Rendered: res.Rendered}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "pages": out})
}

// POST /documents/{id}/review
func (h *handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	rev, err := h.engine.Review(ctx, id)
	if err != nil {
		h.fail(w, "review", err, "document_id", id)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// GET /documents/{id}/report.xlsx
func (h *handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.engine.WriteReport(r.Context(), id, &buf); err != nil {
		h.fail(w, "report", err, "document_id", id)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="report_`+strconv.FormatInt(id, 10)+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
