package importer

// mapper.go aligns source file columns to catalog target fields. The
// auto-matcher is a pure function so the heuristic is testable on its own;
// user edits land in the session's plain mapping map afterwards.

import (
	"strings"

	"github.com/openledgerhq/importd/internal/catalog"
)

// AutoMap produces an initial source header to target field mapping.
// Headers are considered in order; for each header the first catalog field
// (in catalog order) that matches and is not already claimed wins. A target
// claimed by an earlier header is never reassigned by the heuristic, though
// the user may later map any header to any target manually.
func AutoMap(headers []string, entry catalog.Entry) map[string]string {
	mapping := make(map[string]string, len(headers))
	claimed := make(map[string]bool, len(entry.Fields))

	for _, h := range headers {
		for _, f := range entry.Fields {
			if claimed[f.Name] {
				continue
			}
			if headerMatches(h, f.Name) {
				mapping[h] = f.Name
				claimed[f.Name] = true
				break
			}
		}
	}

	return mapping
}

// headerMatches reports whether a source header plausibly names a target
// field: exact match, either containing the other, or a match after
// stripping separator characters from both sides.
func headerMatches(header, field string) bool {
	if header == field {
		return true
	}
	if strings.Contains(header, field) || strings.Contains(field, header) {
		return true
	}
	sh := stripSeparators(header)
	sf := stripSeparators(field)
	return sh != "" && sf != "" && (sh == sf || strings.Contains(sh, sf) || strings.Contains(sf, sh))
}

func stripSeparators(s string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(s)
}

// MissingRequired returns the required target fields of the entry that no
// source column is mapped to, in catalog order.
func MissingRequired(mapping map[string]string, entry catalog.Entry) []string {
	mapped := make(map[string]bool, len(mapping))
	for _, target := range mapping {
		if target != "" {
			mapped[target] = true
		}
	}

	var missing []string
	for _, f := range entry.Fields {
		if f.Required && !mapped[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// MappingComplete reports whether every required target field has a source
// column assigned. This is the gate on the mapping to preview transition.
func MappingComplete(mapping map[string]string, entry catalog.Entry) bool {
	return len(MissingRequired(mapping, entry)) == 0
}

// MapRows translates session rows into target-field keyed rows, preserving
// original indices. When two source columns map to the same target, the
// later header (in source header order) wins, matching the mapping table
// the user sees.
func MapRows(rows []Row, headers []string, mapping map[string]string) []MappedRow {
	mapped := make([]MappedRow, len(rows))
	for i, row := range rows {
		values := make(map[string]string)
		for _, h := range headers {
			target := mapping[h]
			if target == "" {
				continue
			}
			values[target] = row[h]
		}
		mapped[i] = MappedRow{Index: i, Values: values}
	}
	return mapped
}

// MappingList flattens a mapping into the wire form the commit collaborator
// expects, ordered by source header position.
func MappingList(headers []string, mapping map[string]string) []ColumnMapping {
	var list []ColumnMapping
	for _, h := range headers {
		if target := mapping[h]; target != "" {
			list = append(list, ColumnMapping{SourceColumn: h, TargetField: target})
		}
	}
	return list
}
