package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openledgerhq/importd/internal/catalog"
	"github.com/openledgerhq/importd/internal/importer"
	"github.com/openledgerhq/importd/internal/logging"
)

// previewRowLimit caps how many tokenized rows are echoed back in session
// responses. Validation and duplicate results always cover all rows.
const previewRowLimit = 5

// fieldResponse describes one importable field of an entity kind.
type fieldResponse struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
}

// kindResponse describes one entity kind from the catalog.
type kindResponse struct {
	Kind          string          `json:"kind"`
	Label         string          `json:"label"`
	Fields        []fieldResponse `json:"fields"`
	DuplicateKeys []string        `json:"duplicateKeys"`
}

// sessionResponse is the JSON view of a session returned by every
// session-mutating endpoint.
type sessionResponse struct {
	ID               string                     `json:"id"`
	Kind             string                     `json:"kind"`
	Stage            importer.Stage             `json:"stage"`
	FileName         string                     `json:"fileName"`
	Headers          []string                   `json:"headers"`
	RowCount         int                        `json:"rowCount"`
	Mapping          map[string]string          `json:"mapping"`
	MissingRequired  []string                   `json:"missingRequired,omitempty"`
	PreviewRows      []importer.Row             `json:"previewRows,omitempty"`
	ValidationErrors []importer.ValidationError `json:"validationErrors,omitempty"`
	Duplicates       []importer.Duplicate       `json:"duplicates,omitempty"`
	SkipDuplicates   bool                       `json:"skipDuplicates"`
	Results          *importer.Results          `json:"results,omitempty"`
	DurationMs       int64                      `json:"durationMs,omitempty"`
}

func toSessionResponse(sess importer.Session) sessionResponse {
	resp := sessionResponse{
		ID:              sess.ID,
		Kind:            sess.Kind.String(),
		Stage:           sess.Stage,
		FileName:        sess.FileName,
		Headers:         sess.SourceHeaders,
		RowCount:        len(sess.Rows),
		Mapping:         sess.FieldMapping,
		MissingRequired: importer.MissingRequired(sess.FieldMapping, sess.Entry),
		SkipDuplicates:  sess.SkipDuplicates,
	}

	switch sess.Stage {
	case importer.StagePreview:
		limit := len(sess.Rows)
		if limit > previewRowLimit {
			limit = previewRowLimit
		}
		resp.PreviewRows = sess.Rows[:limit]
		resp.ValidationErrors = sess.ValidationErrors
		resp.Duplicates = sess.Duplicates
	case importer.StageComplete:
		results := sess.Results
		resp.Results = &results
		resp.DurationMs = sess.ImportedIn.Milliseconds()
	}

	return resp
}

// handleListKinds returns the catalog of importable entity kinds.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := make([]kindResponse, 0, len(catalog.Kinds()))
	for _, k := range catalog.Kinds() {
		entry := catalog.Lookup(k)
		fields := make([]fieldResponse, 0, len(entry.Fields))
		for _, f := range entry.Fields {
			fr := fieldResponse{
				Name:        f.Name,
				Label:       f.Label,
				Required:    f.Required,
				Description: f.Description,
			}
			if f.Format != catalog.FormatNone {
				fr.Format = f.Format.String()
			}
			fields = append(fields, fr)
		}
		kinds = append(kinds, kindResponse{
			Kind:          k.String(),
			Label:         entry.Label,
			Fields:        fields,
			DuplicateKeys: entry.DuplicateKeys,
		})
	}

	writeJSON(w, map[string]any{"kinds": kinds})
}

// handleDownloadTemplate returns a one-line CSV with the target field names
// for the kind, usable as an import template.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := catalog.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	entry := catalog.Lookup(kind)

	header := make([]string, 0, len(entry.Fields))
	for _, f := range entry.Fields {
		header = append(header, f.Name)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.csv"`, kind))

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(header); err != nil {
		logging.FromContext(r.Context()).Error("template write failed", "error", err)
		return
	}
	csvWriter.Flush()
}

// handleCreateSession accepts a multipart upload (kind + file) and creates
// a session already advanced to the mapping stage.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+4096) // headroom for form fields

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	kind, err := catalog.ParseKind(r.FormValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	// Pre-content gate so oversized or wrongly named files fail before the
	// body is read into memory.
	if err := importer.CheckFile(header.Filename, header.Size); err != nil {
		respondError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	sess, err := s.service.CreateSession(kind, header.Filename, header.Size, data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toSessionResponse(*sess))
}

// handleGetSession returns the current session state.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handleUpdateMapping replaces the session's column mapping.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid mapping format")
		return
	}

	sess, err := s.service.UpdateMapping(chi.URLParam(r, "sessionID"), body.Mapping)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handlePreview validates rows and checks duplicates, advancing the
// session from mapping to preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Preview(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handleBack returns the session from preview to mapping, discarding
// validation and duplicate results.
func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Back(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handleSetOptions updates preview-stage options (duplicate handling).
func (s *Server) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SkipDuplicates *bool `json:"skipDuplicates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SkipDuplicates == nil {
		writeError(w, http.StatusBadRequest, "invalid options")
		return
	}

	sess, err := s.service.SetSkipDuplicates(chi.URLParam(r, "sessionID"), *body.SkipDuplicates)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handleStartImport starts the background commit loop. The response is
// immediate; clients follow the progress and result endpoints.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.service.StartImport(id); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"sessionId": id, "status": "importing"})
}

// handleProgress streams import progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection.
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed, import finished
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Skip events that were already sent (for resumption)
			if lastEventIDStr != "" && progress.Percent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleResult returns the final session state, blocking until the running
// import completes or the request context expires.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	// Gate on stage first so a result request for a session that never
	// started importing fails instead of blocking.
	snap, err := s.service.Snapshot(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if snap.Stage != importer.StageImporting && snap.Stage != importer.StageComplete {
		respondError(w, r, &importer.StageError{Op: "fetch results", Stage: snap.Stage})
		return
	}

	sess, err := s.service.Result(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, toSessionResponse(sess))
}

// handleAbandonSession destroys a session before import starts.
func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Abandon(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "abandoned"})
}

// handleHistory returns recent import completions.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, map[string]any{"imports": []any{}})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, map[string]any{"imports": entries})
}

// respondError maps service errors to HTTP status codes and logs the
// technical detail with the request ID for correlation.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)

	writeError(w, status, err.Error())
}

// statusForError picks the HTTP status for a service error.
func statusForError(err error) int {
	var rejected *importer.FileRejectedError
	var incomplete *importer.MappingIncompleteError
	var stage *importer.StageError

	switch {
	case errors.Is(err, importer.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.As(err, &rejected):
		return http.StatusBadRequest
	case errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stage):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
