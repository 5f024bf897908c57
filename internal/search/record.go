// Package search keeps an optional Meilisearch index of documents. The
// document store stays the source of truth: hits are ids that callers load
// and re-check before returning.
package search

import (
	"fmt"
	"strconv"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
)

// Record is the indexed projection of a document.
type Record struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Author        string   `json:"author"`
	IsPublic      bool     `json:"isPublic"`
	Collaborators []string `json:"collaborators"`
	Tags          []string `json:"tags"`
	IsArchived    bool     `json:"isArchived"`
	LastModified  int64    `json:"lastModified"`
}

func FromDocument(d document.Document) Record {
	collab := make([]string, 0, len(d.Collaborators))
	for _, c := range d.Collaborators {
		collab = append(collab, c.User)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return Record{
		ID:            d.ID,
		Title:         d.Title,
		Content:       d.Content,
		Author:        d.Author,
		IsPublic:      d.IsPublic,
		Collaborators: collab,
		Tags:          tags,
		IsArchived:    d.IsArchived,
		LastModified:  d.LastModified.Unix(),
	}
}

// AccessFilter renders the read-access rule as a Meilisearch filter.
func AccessFilter(identity string) string {
	if identity == "" {
		return "isPublic = true"
	}
	q := strconv.Quote(identity)
	return fmt.Sprintf("isPublic = true OR author = %s OR collaborators = %s", q, q)
}
