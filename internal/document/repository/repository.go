package repository

import (
	"context"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
)

// Repository is the Document Store boundary. Save is a compare-and-swap on
// Document.Revision: a document loaded before a concurrent save can no
// longer be written back and fails with a Conflict error.
type Repository interface {
	Load(ctx context.Context, id string) (document.Document, error)
	Insert(ctx context.Context, doc document.Document) (document.Document, error)
	Save(ctx context.Context, doc document.Document) (document.Document, error)
	Delete(ctx context.Context, id string) error
	IncrementAccess(ctx context.Context, id string) error
	ListAccessibleTo(ctx context.Context, identity string, page, pageSize int) ([]document.Document, int64, error)
	FullTextSearch(ctx context.Context, query, identity string, limit int) ([]document.Document, error)
}

// ErrConcurrentUpdate is returned by Save when the stored revision moved on.
var ErrConcurrentUpdate = document.ErrStaleVersion

// normalizePage clamps 1-based page numbers and page sizes.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
