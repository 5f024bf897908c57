// Package document holds the document data model and the pure commands that
// operate on it: the access policy, the version ledger and the sharing
// manager. Nothing in this package performs I/O; callers load a Document,
// apply a command to get a new value, and persist it explicitly.
package document

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxTitleLength is the maximum title length in characters.
const MaxTitleLength = 200

var (
	ErrNotFound        = apperr.NotFound("document not found")
	ErrVersionNotFound = apperr.NotFound("version not found")
	ErrAccessDenied    = apperr.Forbidden("access denied")
	ErrEditDenied      = apperr.Forbidden("edit permission denied")
	ErrShareDenied     = apperr.Forbidden("share permission denied")
	ErrDeleteDenied    = apperr.Forbidden("delete permission denied")
	ErrSelfShare       = apperr.InvalidArgument("cannot share document with yourself")
	ErrNoChanges       = apperr.InvalidArgument("no changes detected")
	ErrStaleVersion    = apperr.Conflict("document has a newer version")
)

// Permission is a collaborator access level.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// ParsePermission validates a permission string.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionView, PermissionEdit:
		return Permission(s), nil
	}
	return "", apperr.InvalidArgument("permission must be view or edit")
}

// Collaborator is a grant of access to one identity.
type Collaborator struct {
	User       string     `json:"user" bson:"user"`
	Permission Permission `json:"permission" bson:"permission"`
	SharedAt   time.Time  `json:"sharedAt" bson:"sharedAt"`
}

// Version is an immutable snapshot of prior content.
type Version struct {
	ID        string    `json:"id" bson:"id"`
	Content   string    `json:"content" bson:"content"`
	Version   int       `json:"version" bson:"version"`
	CreatedBy string    `json:"createdBy" bson:"createdBy"`
	Changes   string    `json:"changes" bson:"changes"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Document is the persistent document record. Versions holds only prior
// states, so CurrentVersion == len(Versions)+1 at all times.
type Document struct {
	ID             string         `json:"id" bson:"_id"`
	Title          string         `json:"title" bson:"title"`
	Content        string         `json:"content" bson:"content"`
	Author         string         `json:"author" bson:"author"`
	IsPublic       bool           `json:"isPublic" bson:"isPublic"`
	Collaborators  []Collaborator `json:"collaborators" bson:"collaborators"`
	Versions       []Version      `json:"versions" bson:"versions"`
	CurrentVersion int            `json:"currentVersion" bson:"currentVersion"`
	Tags           []string       `json:"tags" bson:"tags"`
	LastModified   time.Time      `json:"lastModified" bson:"lastModified"`
	LastModifiedBy string         `json:"lastModifiedBy" bson:"lastModifiedBy"`
	AccessCount    int64          `json:"accessCount" bson:"accessCount"`
	IsArchived     bool           `json:"isArchived" bson:"isArchived"`
	CreatedAt      time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt" bson:"updatedAt"`

	// Revision guards persistence against lost updates; bumped by the store on every save.
	Revision int64 `json:"-" bson:"revision"`
}

// Clone returns a deep copy so commands never share slices with their input.
func (d Document) Clone() Document {
	out := d
	if d.Collaborators != nil {
		out.Collaborators = append([]Collaborator(nil), d.Collaborators...)
	}
	if d.Versions != nil {
		out.Versions = append([]Version(nil), d.Versions...)
	}
	if d.Tags != nil {
		out.Tags = append([]string(nil), d.Tags...)
	}
	return out
}

// Collaborator returns the grant held by identity, if any.
func (d Document) Collaborator(identity string) (Collaborator, bool) {
	for _, c := range d.Collaborators {
		if c.User == identity {
			return c, true
		}
	}
	return Collaborator{}, false
}

// CreateCommand is a validated request to create a document.
type CreateCommand struct {
	Title    string
	Content  string
	IsPublic bool
	Tags     []string
}

// NewDocument builds a fresh document owned by author. Version 1 is implicit:
// the live content is version 1 and history starts empty.
func NewDocument(cmd CreateCommand, author string, now time.Time) (Document, error) {
	if author == "" {
		return Document{}, apperr.Unauthorized("author required")
	}
	title, err := NormalizeTitle(cmd.Title)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:             NewID(),
		Title:          title,
		Content:        cmd.Content,
		Author:         author,
		IsPublic:       cmd.IsPublic,
		Collaborators:  []Collaborator{},
		Versions:       []Version{},
		CurrentVersion: 1,
		Tags:           NormalizeTags(cmd.Tags),
		LastModified:   now,
		LastModifiedBy: author,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewID returns a new opaque identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// NormalizeTitle trims and bounds a title.
func NormalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", apperr.InvalidArgument("Document title is required")
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return "", apperr.InvalidArgument("Title cannot exceed %d characters", MaxTitleLength)
	}
	return t, nil
}

// NormalizeTags trims tags and drops empty or repeated ones, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
