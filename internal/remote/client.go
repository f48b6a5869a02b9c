// Package remote implements the HTTP clients for the two import
// collaborators: the per-kind duplicate-check endpoint and the per-kind
// batch commit endpoint. Both speak JSON over POST.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openledgerhq/importd/internal/catalog"
	"github.com/openledgerhq/importd/internal/importer"
)

// Client talks to the records backend that owns duplicate matching and
// record creation. It implements importer.DuplicateChecker and
// importer.BatchCommitter.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the records backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type checkDuplicatesRequest struct {
	Rows []wireRow `json:"rows"`
	Keys []string  `json:"keys"`
}

type checkDuplicatesResponse struct {
	Duplicates []importer.Duplicate `json:"duplicates"`
}

// wireRow marshals a mapped row as a flat JSON object with the original
// row index carried in a reserved "_rowIndex" member, which is the shape
// the collaborator expects.
type wireRow struct {
	index  int
	values map[string]string
}

func (r wireRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.values)+1)
	for k, v := range r.values {
		flat[k] = v
	}
	flat["_rowIndex"] = r.index
	return json.Marshal(flat)
}

// CheckDuplicates posts the mapped row set and key fields to the kind's
// check-duplicates endpoint and returns the collisions it reports.
func (c *Client) CheckDuplicates(ctx context.Context, kind catalog.EntityKind, rows []importer.MappedRow, keys []string) ([]importer.Duplicate, error) {
	wire := make([]wireRow, len(rows))
	for i, mr := range rows {
		wire[i] = wireRow{index: mr.Index, values: mr.Values}
	}

	var resp checkDuplicatesResponse
	url := fmt.Sprintf("%s/api/import/%s/check-duplicates", c.baseURL, kind)
	if err := c.postJSON(ctx, url, checkDuplicatesRequest{Rows: wire, Keys: keys}, &resp); err != nil {
		return nil, err
	}
	return resp.Duplicates, nil
}

type commitRequest struct {
	Rows     []map[string]string      `json:"rows"`
	Mappings []importer.ColumnMapping `json:"mappings"`
}

// CommitBatch posts one batch of mapped rows to the kind's import endpoint.
// A non-2xx response is an error; the committer counts the batch failed.
func (c *Client) CommitBatch(ctx context.Context, kind catalog.EntityKind, rows []importer.MappedRow, mappings []importer.ColumnMapping) (importer.BatchResult, error) {
	body := commitRequest{
		Rows:     make([]map[string]string, len(rows)),
		Mappings: mappings,
	}
	for i, mr := range rows {
		body.Rows[i] = mr.Values
	}

	var result importer.BatchResult
	url := fmt.Sprintf("%s/api/import/%s", c.baseURL, kind)
	if err := c.postJSON(ctx, url, body, &result); err != nil {
		return importer.BatchResult{}, err
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the error message, then bail.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
