// Package importer implements the tabular data import pipeline: a staged
// workflow that tokenizes an untrusted delimited file, maps its columns onto
// an entity schema, validates and deduplicates every row, and commits the
// accepted subset in fixed-size batches while tracking partial success.
// This package has no HTTP dependencies; the web layer drives it.
package importer

import (
	"context"
	"time"

	"github.com/openledgerhq/importd/internal/catalog"
)

// Stage is the current position of a session in the import workflow.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageMapping   Stage = "mapping"
	StagePreview   Stage = "preview"
	StageImporting Stage = "importing"
	StageComplete  Stage = "complete"
)

// Row is one parsed file row, keyed by sanitized source header.
type Row map[string]string

// Duplicate flags a row whose mapped values collide with an existing record.
type Duplicate struct {
	RowIndex   int    `json:"rowIndex"`
	Field      string `json:"field"`
	Value      string `json:"value"`
	ExistingID string `json:"existingId"`
}

// ValidationError is a single per-row, per-field validation failure.
type ValidationError struct {
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// Results holds the commit outcome counts. Counts only accumulate; once the
// session is complete, Success+Failed+Skipped equals the number of rows.
type Results struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the sum of all outcome counts.
func (r Results) Total() int {
	return r.Success + r.Failed + r.Skipped
}

// MappedRow is a row translated from source headers to target fields,
// carrying its original index so duplicate and result records stay stable
// references into the session's row sequence.
type MappedRow struct {
	Index  int
	Values map[string]string
}

// ColumnMapping describes one source column to target field association as
// sent to the commit collaborator.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  string `json:"targetField"`
}

// ImportProgress is a snapshot of a running import, emitted after every
// committed batch.
type ImportProgress struct {
	SessionID string  `json:"sessionId"`
	Stage     Stage   `json:"stage"`
	Percent   int     `json:"percent"`
	Processed int     `json:"processed"`
	Admitted  int     `json:"admitted"`
	Results   Results `json:"results"`
}

// ProgressFunc receives progress snapshots during the importing stage.
type ProgressFunc func(ImportProgress)

// DuplicateChecker asks the remote collaborator which mapped rows collide
// with existing records on the given key fields. Matching semantics are
// owned by the collaborator and treated as opaque here.
type DuplicateChecker interface {
	CheckDuplicates(ctx context.Context, kind catalog.EntityKind, rows []MappedRow, keys []string) ([]Duplicate, error)
}

// BatchResult is the commit collaborator's per-batch accounting.
type BatchResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BatchCommitter submits one batch of mapped rows to the remote commit
// collaborator.
type BatchCommitter interface {
	CommitBatch(ctx context.Context, kind catalog.EntityKind, rows []MappedRow, mappings []ColumnMapping) (BatchResult, error)
}

// CompletedImport summarizes a finished session for the history recorder.
type CompletedImport struct {
	SessionID string
	Kind      catalog.EntityKind
	FileName  string
	TotalRows int
	Results   Results
	Duration  time.Duration
}

// HistoryRecorder persists completed import summaries. Recording is
// best-effort: failures are logged by the caller, never surfaced.
type HistoryRecorder interface {
	RecordImport(ctx context.Context, rec CompletedImport) error
}
