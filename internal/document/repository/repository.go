// Package repository persists documents and their audit logs.
package repository

import (
	"context"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = document.ErrNotFound

// Repository is the persistence collaborator. Update writes scalar fields
// only; log entries are only ever appended through InsertLogEntry, which is
// idempotent per entry id.
type Repository interface {
	Insert(ctx context.Context, d *document.Document) error
	Update(ctx context.Context, d *document.Document) error
	InsertLogEntry(ctx context.Context, e audit.Entry) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
	// ReferenceNumbers returns every stored reference number that starts
	// with prefix, checkpoints included.
	ReferenceNumbers(ctx context.Context, prefix string) ([]string, error)
}
