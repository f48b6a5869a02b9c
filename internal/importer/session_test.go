package importer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/openledgerhq/importd/internal/catalog"
)

// fakeChecker answers duplicate checks from a script.
type fakeChecker struct {
	dups  []Duplicate
	err   error
	calls int
	keys  []string
}

func (f *fakeChecker) CheckDuplicates(ctx context.Context, kind catalog.EntityKind, rows []MappedRow, keys []string) ([]Duplicate, error) {
	f.calls++
	f.keys = keys
	return f.dups, f.err
}

func csvData() []byte {
	return []byte("Name,Email\nAlice,alice@example.com\nBob,bob@example.com\nCarol,carol@example.com\n")
}

func uploadedSession(t *testing.T) *Session {
	t.Helper()
	sess := NewSession("test-session", catalog.KindContacts)
	data := csvData()
	if err := sess.Upload("contacts.csv", int64(len(data)), data); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return sess
}

func previewedSession(t *testing.T, checker DuplicateChecker) *Session {
	t.Helper()
	sess := uploadedSession(t)
	if err := sess.ToPreview(context.Background(), checker, slog.Default()); err != nil {
		t.Fatalf("ToPreview() error = %v", err)
	}
	return sess
}

func TestSession_UploadAdvancesToMapping(t *testing.T) {
	sess := uploadedSession(t)

	if sess.Stage != StageMapping {
		t.Errorf("Stage = %q, want %q", sess.Stage, StageMapping)
	}
	if len(sess.Rows) != 3 {
		t.Errorf("rows = %d, want 3", len(sess.Rows))
	}
	// Auto-mapping ran on the lowercased headers.
	if sess.FieldMapping["name"] != "name" || sess.FieldMapping["email"] != "email" {
		t.Errorf("FieldMapping = %v, want name and email mapped", sess.FieldMapping)
	}
	if !sess.SkipDuplicates {
		t.Error("SkipDuplicates should default to true")
	}
}

func TestSession_UploadRejectionKeepsStage(t *testing.T) {
	sess := NewSession("test-session", catalog.KindContacts)
	data := []byte("name\n=cmd|'/c calc'!A1\n")

	err := sess.Upload("evil.csv", int64(len(data)), data)
	var rejected *FileRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Upload() error = %v, want *FileRejectedError", err)
	}
	if sess.Stage != StageUpload {
		t.Errorf("Stage = %q, want %q after rejection", sess.Stage, StageUpload)
	}
}

func TestSession_UploadWrongStage(t *testing.T) {
	sess := uploadedSession(t)
	data := csvData()

	err := sess.Upload("again.csv", int64(len(data)), data)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Upload() error = %v, want *StageError", err)
	}
}

func TestSession_SetMapping(t *testing.T) {
	sess := uploadedSession(t)

	tests := []struct {
		name    string
		mapping map[string]string
		wantErr bool
	}{
		{"valid remap", map[string]string{"name": "company", "email": "email"}, false},
		{"clear assignment", map[string]string{"name": "name", "email": ""}, false},
		{"unknown source column", map[string]string{"nope": "name"}, true},
		{"unknown target field", map[string]string{"name": "salary"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sess.SetMapping(tt.mapping)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetMapping(%v) error = %v, wantErr %v", tt.mapping, err, tt.wantErr)
			}
		})
	}
}

func TestSession_ToPreviewGatedOnRequiredMapping(t *testing.T) {
	sess := uploadedSession(t)
	if err := sess.SetMapping(map[string]string{"email": "email"}); err != nil {
		t.Fatalf("SetMapping() error = %v", err)
	}

	err := sess.ToPreview(context.Background(), nil, slog.Default())
	var incomplete *MappingIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("ToPreview() error = %v, want *MappingIncompleteError", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != "name" {
		t.Errorf("Missing = %v, want [name]", incomplete.Missing)
	}
	if sess.Stage != StageMapping {
		t.Errorf("Stage = %q, want unchanged %q", sess.Stage, StageMapping)
	}
}

func TestSession_ToPreviewComputesValidationAndDuplicates(t *testing.T) {
	checker := &fakeChecker{
		dups: []Duplicate{{RowIndex: 1, Field: "email", Value: "bob@example.com", ExistingID: "7"}},
	}
	sess := previewedSession(t, checker)

	if sess.Stage != StagePreview {
		t.Errorf("Stage = %q, want %q", sess.Stage, StagePreview)
	}
	if checker.calls != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls)
	}
	if len(checker.keys) != 2 || checker.keys[0] != "email" || checker.keys[1] != "name" {
		t.Errorf("checker keys = %v, want [email name]", checker.keys)
	}
	if len(sess.Duplicates) != 1 {
		t.Errorf("Duplicates = %d, want 1", len(sess.Duplicates))
	}
	if len(sess.ValidationErrors) != 0 {
		t.Errorf("ValidationErrors = %+v, want none", sess.ValidationErrors)
	}
}

func TestSession_ToPreviewCheckerFailureIsOpen(t *testing.T) {
	checker := &fakeChecker{err: errors.New("backend unreachable")}
	sess := previewedSession(t, checker)

	if sess.Stage != StagePreview {
		t.Errorf("Stage = %q, want %q despite checker failure", sess.Stage, StagePreview)
	}
	if len(sess.Duplicates) != 0 {
		t.Errorf("Duplicates = %d, want 0 on fail-open", len(sess.Duplicates))
	}
}

func TestSession_BackDiscardsComputedSets(t *testing.T) {
	checker := &fakeChecker{
		dups: []Duplicate{{RowIndex: 0, Field: "email", Value: "alice@example.com", ExistingID: "1"}},
	}
	sess := previewedSession(t, checker)

	if err := sess.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	if sess.Stage != StageMapping {
		t.Errorf("Stage = %q, want %q", sess.Stage, StageMapping)
	}
	if sess.ValidationErrors != nil || sess.Duplicates != nil {
		t.Error("Back() must discard validation errors and duplicates")
	}

	// Forward again recomputes through the checker.
	if err := sess.ToPreview(context.Background(), checker, slog.Default()); err != nil {
		t.Fatalf("ToPreview() error = %v", err)
	}
	if checker.calls != 2 {
		t.Errorf("checker calls = %d, want 2 after re-entering preview", checker.calls)
	}
}

func TestSession_SetSkipDuplicatesOnlyInPreview(t *testing.T) {
	sess := uploadedSession(t)

	err := sess.SetSkipDuplicates(false)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("SetSkipDuplicates() error = %v, want *StageError", err)
	}

	if err := sess.ToPreview(context.Background(), nil, slog.Default()); err != nil {
		t.Fatalf("ToPreview() error = %v", err)
	}
	if err := sess.SetSkipDuplicates(false); err != nil {
		t.Errorf("SetSkipDuplicates() error = %v in preview", err)
	}
	if sess.SkipDuplicates {
		t.Error("SkipDuplicates should be false after toggle")
	}
}

func TestSession_ImportRunsToComplete(t *testing.T) {
	checker := &fakeChecker{
		dups: []Duplicate{{RowIndex: 2, Field: "email", Value: "carol@example.com", ExistingID: "9"}},
	}
	sess := previewedSession(t, checker)
	committer := &fakeCommitter{}

	err := sess.Import(context.Background(), committer, 50, nil, slog.Default())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if sess.Stage != StageComplete {
		t.Errorf("Stage = %q, want %q", sess.Stage, StageComplete)
	}
	if sess.Results.Success != 2 || sess.Results.Skipped != 1 {
		t.Errorf("Results = %+v, want 2 success 1 skipped", sess.Results)
	}
	if sess.Results.Total() != len(sess.Rows) {
		t.Errorf("Total() = %d, want %d", sess.Results.Total(), len(sess.Rows))
	}
}

func TestSession_ImportFromWrongStage(t *testing.T) {
	sess := uploadedSession(t)
	committer := &fakeCommitter{}

	err := sess.Import(context.Background(), committer, 50, nil, slog.Default())
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Import() error = %v, want *StageError", err)
	}
	if sess.Stage != StageMapping {
		t.Errorf("Stage = %q, want unchanged %q", sess.Stage, StageMapping)
	}
}

func TestSession_AdmittedCount(t *testing.T) {
	checker := &fakeChecker{
		dups: []Duplicate{{RowIndex: 0, Field: "email", Value: "alice@example.com", ExistingID: "1"}},
	}
	sess := previewedSession(t, checker)

	if got := sess.AdmittedCount(); got != 2 {
		t.Errorf("AdmittedCount() = %d, want 2 with skip on", got)
	}
	if err := sess.SetSkipDuplicates(false); err != nil {
		t.Fatalf("SetSkipDuplicates() error = %v", err)
	}
	if got := sess.AdmittedCount(); got != 3 {
		t.Errorf("AdmittedCount() = %d, want 3 with skip off", got)
	}
}
