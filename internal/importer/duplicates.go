package importer

// duplicates.go forwards the mapped row set to the remote duplicate-check
// collaborator. Matching semantics live entirely on the remote side.

import (
	"context"
	"log/slog"

	"github.com/openledgerhq/importd/internal/catalog"
)

// detectDuplicates asks the checker which mapped rows collide with existing
// records on the kind's key fields.
//
// The check is best-effort by design: when the collaborator is unreachable
// or errors, the pipeline degrades to "no duplicates found" and continues
// with zero duplicate protection. That availability-over-safety tradeoff is
// a product decision; the warn log below is what keeps the silent
// data-quality risk observable.
func detectDuplicates(ctx context.Context, checker DuplicateChecker, kind catalog.EntityKind, rows []MappedRow, keys []string, logger *slog.Logger) []Duplicate {
	if checker == nil {
		return nil
	}

	dups, err := checker.CheckDuplicates(ctx, kind, rows, keys)
	if err != nil {
		logger.Warn("duplicate check unavailable, continuing without duplicate protection",
			"kind", kind.String(),
			"rows", len(rows),
			"error", err,
		)
		return nil
	}
	return dups
}
