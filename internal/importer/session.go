package importer

// session.go is the state machine that owns one import workflow from file
// upload to the completion summary. A session is exclusively owned by the
// workflow instance that created it; the stages run on a single logical
// thread with remote calls as the only suspension points.

import (
	"context"
	"log/slog"
	"time"

	"github.com/openledgerhq/importd/internal/catalog"
)

// Session is the root aggregate of one import workflow.
type Session struct {
	ID    string
	Kind  catalog.EntityKind
	Entry catalog.Entry // resolved once at creation
	Stage Stage

	FileName      string
	SourceHeaders []string
	Rows          []Row

	// FieldMapping maps source header to target field name; "" means the
	// column is unmapped and its values are ignored.
	FieldMapping map[string]string

	// ValidationErrors and Duplicates are computed on each transition into
	// preview and discarded when the user goes back to mapping, so they can
	// never go stale against an edited mapping.
	ValidationErrors []ValidationError
	Duplicates       []Duplicate

	SkipDuplicates bool
	Results        Results

	CreatedAt  time.Time
	ImportedIn time.Duration // commit loop duration, set on completion
}

// NewSession creates a session in the upload stage for one entity kind.
// The kind is immutable for the session's lifetime.
func NewSession(id string, kind catalog.EntityKind) *Session {
	return &Session{
		ID:             id,
		Kind:           kind,
		Entry:          catalog.Lookup(kind),
		Stage:          StageUpload,
		SkipDuplicates: true,
		CreatedAt:      time.Now(),
	}
}

// Upload tokenizes the file and advances upload -> mapping. On failure the
// session stays in upload and the user must re-select a file.
func (s *Session) Upload(fileName string, size int64, data []byte) error {
	if s.Stage != StageUpload {
		return &StageError{Op: "upload a file", Stage: s.Stage}
	}

	headers, rows, err := Tokenize(fileName, size, data)
	if err != nil {
		return err
	}

	s.FileName = fileName
	s.SourceHeaders = headers
	s.Rows = rows
	s.FieldMapping = AutoMap(headers, s.Entry)
	s.Stage = StageMapping
	return nil
}

// SetMapping replaces the field mapping during the mapping stage. Unknown
// target names are rejected; "" clears a column's assignment.
func (s *Session) SetMapping(mapping map[string]string) error {
	if s.Stage != StageMapping {
		return &StageError{Op: "edit the mapping", Stage: s.Stage}
	}

	headerSet := make(map[string]bool, len(s.SourceHeaders))
	for _, h := range s.SourceHeaders {
		headerSet[h] = true
	}

	clean := make(map[string]string, len(mapping))
	for source, target := range mapping {
		if !headerSet[source] {
			return &StageError{Op: "map unknown column " + source, Stage: s.Stage}
		}
		if target == "" {
			continue
		}
		if _, ok := s.Entry.Field(target); !ok {
			return &StageError{Op: "map to unknown field " + target, Stage: s.Stage}
		}
		clean[source] = target
	}

	s.FieldMapping = clean
	return nil
}

// ToPreview advances mapping -> preview: gated on mapping completeness,
// then runs validation and the best-effort duplicate check. On a gate
// failure the stage is unchanged.
func (s *Session) ToPreview(ctx context.Context, checker DuplicateChecker, logger *slog.Logger) error {
	if s.Stage != StageMapping {
		return &StageError{Op: "preview", Stage: s.Stage}
	}
	if missing := MissingRequired(s.FieldMapping, s.Entry); len(missing) > 0 {
		return &MappingIncompleteError{Missing: missing}
	}

	mapped := MapRows(s.Rows, s.SourceHeaders, s.FieldMapping)
	s.ValidationErrors = ValidateRows(s.Rows, s.SourceHeaders, s.FieldMapping, s.Entry)
	s.Duplicates = detectDuplicates(ctx, checker, s.Kind, mapped, s.Entry.DuplicateKeys, logger)
	s.Stage = StagePreview
	return nil
}

// Back returns preview -> mapping, discarding the computed error and
// duplicate sets; both are recomputed on the next forward transition.
func (s *Session) Back() error {
	if s.Stage != StagePreview {
		return &StageError{Op: "go back to mapping", Stage: s.Stage}
	}
	s.ValidationErrors = nil
	s.Duplicates = nil
	s.Stage = StageMapping
	return nil
}

// SetSkipDuplicates toggles whether duplicate-flagged rows are excluded
// from commit. Only meaningful while reviewing the preview.
func (s *Session) SetSkipDuplicates(skip bool) error {
	if s.Stage != StagePreview {
		return &StageError{Op: "change duplicate handling", Stage: s.Stage}
	}
	s.SkipDuplicates = skip
	return nil
}

// beginImport advances preview -> importing and captures everything the
// commit loop needs, so the loop can run without touching session state
// until finishImport.
func (s *Session) beginImport(batchSize int) (commitRequest, error) {
	if s.Stage != StagePreview {
		return commitRequest{}, &StageError{Op: "start the import", Stage: s.Stage}
	}
	s.Stage = StageImporting
	return commitRequest{
		kind:           s.Kind,
		rows:           MapRows(s.Rows, s.SourceHeaders, s.FieldMapping),
		mappings:       MappingList(s.SourceHeaders, s.FieldMapping),
		errors:         s.ValidationErrors,
		duplicates:     s.Duplicates,
		skipDuplicates: s.SkipDuplicates,
		batchSize:      batchSize,
	}, nil
}

// finishImport records the commit outcome and lands the session in its
// terminal stage.
func (s *Session) finishImport(results Results, elapsed time.Duration) {
	s.Results = results
	s.ImportedIn = elapsed
	s.Stage = StageComplete
}

// Import advances preview -> importing, runs the batch committer to
// completion, and lands in complete. Once started there is no cancellation
// path; every row outcome is accounted for in the results.
func (s *Session) Import(ctx context.Context, committer BatchCommitter, batchSize int, progress ProgressFunc, logger *slog.Logger) error {
	req, err := s.beginImport(batchSize)
	if err != nil {
		return err
	}
	start := time.Now()
	results := commitAll(ctx, committer, req, progress, logger)
	s.finishImport(results, time.Since(start))
	return nil
}

// AdmittedCount returns how many rows would be committed under the current
// error, duplicate, and skip settings. Derived on demand so the row
// classification can never drift from the underlying sets.
func (s *Session) AdmittedCount() int {
	mapped := MapRows(s.Rows, s.SourceHeaders, s.FieldMapping)
	return len(admittedRows(mapped, s.ValidationErrors, s.Duplicates, s.SkipDuplicates))
}
