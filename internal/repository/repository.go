// Package repository provides a uniform create/read/update/delete contract
// over keyed JSON-like records, with a REST implementation talking to an
// HTTP API and a local implementation kept in memory and optionally
// persisted to a YAML file.
package repository

import (
	"context"
	"fmt"

	"github.com/conneroisu/reactive/internal/errors"
)

// IDField is the record key holding the record identifier.
const IDField = "id"

// Record is one stored document.
type Record = map[string]any

// Repository is the CRUD contract shared by every backend.
type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Record, error)
	// Create stores record and returns it with its identifier set.
	Create(ctx context.Context, record Record) (Record, error)
	Read(ctx context.Context, id string) (Record, error)
	// Update replaces the record stored under id.
	Update(ctx context.Context, id string, record Record) (Record, error)
	Delete(ctx context.Context, id string) error
}

// ID returns the identifier of record, or "" if it has none. Numeric
// identifiers are formatted without a fractional part.
func ID(record Record) string {
	switch v := record[IDField].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

func validateID(id string) error {
	if id == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "record id cannot be empty")
	}
	return nil
}

// clone deep-copies plain maps and slices so callers never share state with
// a repository.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	}
	return v
}

func cloneRecord(r Record) Record {
	if r == nil {
		return Record{}
	}
	return clone(r).(map[string]any)
}
