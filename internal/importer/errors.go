package importer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFile means the file parsed to zero headers or zero usable rows.
// Handled like a rejection: the session stays in the upload stage.
var ErrEmptyFile = errors.New("file appears to be empty or invalid")

// ErrSessionNotFound is returned by the service for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// FileRejectedError means the file failed the size, extension, or
// malicious-content gates. Fatal to the upload; the user must re-select.
type FileRejectedError struct {
	Reason string
}

func (e *FileRejectedError) Error() string {
	return "file rejected: " + e.Reason
}

// MappingIncompleteError blocks the mapping to preview transition while any
// required target field has no source column assigned.
type MappingIncompleteError struct {
	Missing []string // required target fields with no source column
}

func (e *MappingIncompleteError) Error() string {
	return "required fields not mapped: " + strings.Join(e.Missing, ", ")
}

// StageError is returned when an operation is attempted from the wrong
// stage. The session is left unchanged.
type StageError struct {
	Op    string
	Stage Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("cannot %s from stage %q", e.Op, e.Stage)
}
