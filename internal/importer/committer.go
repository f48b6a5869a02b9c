package importer

// committer.go partitions the admitted row set into fixed-size batches and
// submits them sequentially to the remote commit collaborator. Sequential
// submission is deliberate backpressure: it bounds concurrent load on the
// store and keeps reported progress monotonic. Failed batches are counted,
// never retried.

import (
	"context"
	"log/slog"
	"math"

	"github.com/openledgerhq/importd/internal/catalog"
)

// DefaultBatchSize is the number of rows submitted per commit call.
const DefaultBatchSize = 50

// admittedRows returns the rows eligible for commit, in original order.
// A row is admitted iff it has no validation error and is either not
// flagged as a duplicate or duplicates are being imported anyway.
func admittedRows(rows []MappedRow, errs []ValidationError, dups []Duplicate, skipDuplicates bool) []MappedRow {
	errRows := make(map[int]bool, len(errs))
	for _, e := range errs {
		errRows[e.RowIndex] = true
	}
	dupRows := make(map[int]bool, len(dups))
	for _, d := range dups {
		dupRows[d.RowIndex] = true
	}

	var admitted []MappedRow
	for _, mr := range rows {
		if errRows[mr.Index] {
			continue
		}
		if skipDuplicates && dupRows[mr.Index] {
			continue
		}
		admitted = append(admitted, mr)
	}
	return admitted
}

// commitRequest carries everything the committer needs for one session.
type commitRequest struct {
	kind           catalog.EntityKind
	rows           []MappedRow
	mappings       []ColumnMapping
	errors         []ValidationError
	duplicates     []Duplicate
	skipDuplicates bool
	batchSize      int
}

// commitAll runs the full commit loop and returns the final results.
// Counts are accumulated monotonically; every input row lands in exactly
// one of success, failed, or skipped. There is no pipeline-fatal condition
// here: even a dead collaborator yields a complete results summary.
func commitAll(ctx context.Context, committer BatchCommitter, req commitRequest, progress ProgressFunc, logger *slog.Logger) Results {
	batchSize := req.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	admitted := admittedRows(req.rows, req.errors, req.duplicates, req.skipDuplicates)

	results := Results{Skipped: len(req.rows) - len(admitted)}

	for start := 0; start < len(admitted); start += batchSize {
		end := start + batchSize
		if end > len(admitted) {
			end = len(admitted)
		}
		batch := admitted[start:end]

		res, err := committer.CommitBatch(ctx, req.kind, batch, req.mappings)
		if err != nil {
			// The whole batch is counted failed; the committer advances.
			results.Failed += len(batch)
			logger.Warn("batch commit failed",
				"kind", req.kind.String(),
				"batch_rows", len(batch),
				"error", err,
			)
		} else {
			results.Success += res.Success
			results.Failed += res.Failed
		}

		if progress != nil {
			progress(ImportProgress{
				Stage:     StageImporting,
				Percent:   progressPercent(end, len(admitted)),
				Processed: end,
				Admitted:  len(admitted),
				Results:   results,
			})
		}
	}

	return results
}

// progressPercent reports processed rows as a rounded percentage of the
// admitted set.
func progressPercent(processed, admitted int) int {
	if admitted <= 0 {
		return 100
	}
	return int(math.Round(float64(processed) / float64(admitted) * 100))
}
