package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openledgerhq/importd/internal/catalog"
	"github.com/openledgerhq/importd/internal/importer"
)

func TestCheckDuplicates_WireFormat(t *testing.T) {
	var gotPath string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"duplicates":[{"rowIndex":3,"field":"email","value":"a@b.co","existingId":"42"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	rows := []importer.MappedRow{
		{Index: 3, Values: map[string]string{"name": "Alice", "email": "a@b.co"}},
	}

	dups, err := client.CheckDuplicates(context.Background(), catalog.KindContacts, rows, []string{"email", "name"})
	if err != nil {
		t.Fatalf("CheckDuplicates() error = %v", err)
	}

	if gotPath != "/api/import/contacts/check-duplicates" {
		t.Errorf("path = %q, want /api/import/contacts/check-duplicates", gotPath)
	}

	var wireRows []map[string]any
	if err := json.Unmarshal(gotBody["rows"], &wireRows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(wireRows) != 1 {
		t.Fatalf("rows = %d, want 1", len(wireRows))
	}
	// Row values are flattened with the index carried in _rowIndex.
	if wireRows[0]["name"] != "Alice" || wireRows[0]["email"] != "a@b.co" {
		t.Errorf("row values = %v", wireRows[0])
	}
	if idx, ok := wireRows[0]["_rowIndex"].(float64); !ok || int(idx) != 3 {
		t.Errorf("_rowIndex = %v, want 3", wireRows[0]["_rowIndex"])
	}

	var keys []string
	if err := json.Unmarshal(gotBody["keys"], &keys); err != nil {
		t.Fatalf("decode keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "email" || keys[1] != "name" {
		t.Errorf("keys = %v, want [email name]", keys)
	}

	if len(dups) != 1 {
		t.Fatalf("duplicates = %d, want 1", len(dups))
	}
	if dups[0].RowIndex != 3 || dups[0].ExistingID != "42" {
		t.Errorf("duplicate = %+v", dups[0])
	}
}

func TestCommitBatch_WireFormat(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Rows     []map[string]string      `json:"rows"`
		Mappings []importer.ColumnMapping `json:"mappings"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":2,"failed":0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	rows := []importer.MappedRow{
		{Index: 0, Values: map[string]string{"name": "Alice"}},
		{Index: 1, Values: map[string]string{"name": "Bob"}},
	}
	mappings := []importer.ColumnMapping{{SourceColumn: "full name", TargetField: "name"}}

	result, err := client.CommitBatch(context.Background(), catalog.KindProducts, rows, mappings)
	if err != nil {
		t.Fatalf("CommitBatch() error = %v", err)
	}

	if gotPath != "/api/import/products" {
		t.Errorf("path = %q, want /api/import/products", gotPath)
	}
	if len(gotBody.Rows) != 2 || gotBody.Rows[1]["name"] != "Bob" {
		t.Errorf("rows = %v", gotBody.Rows)
	}
	if len(gotBody.Mappings) != 1 || gotBody.Mappings[0].SourceColumn != "full name" {
		t.Errorf("mappings = %v", gotBody.Mappings)
	}
	if result.Success != 2 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2 success", result)
	}
}

func TestClient_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)

	_, err := client.CommitBatch(context.Background(), catalog.KindContacts, nil, nil)
	if err == nil {
		t.Fatal("CommitBatch() expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, should mention status 500", err)
	}
	if !strings.Contains(err.Error(), "backend exploded") {
		t.Errorf("error = %v, should include body snippet", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CheckDuplicates(ctx, catalog.KindContacts, nil, []string{"email"})
	if err == nil {
		t.Fatal("CheckDuplicates() expected error on context timeout")
	}
}
