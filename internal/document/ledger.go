package document

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultChangeNote describes a snapshot when the caller gives no note.
const DefaultChangeNote = "Document updated"

// CreateVersion snapshots the current content under the current version
// number, advances the counter and installs newContent. Callers must only
// invoke it when newContent differs from doc.Content; it does not check.
func CreateVersion(doc Document, newContent, author, note string, now time.Time) Document {
	if note == "" {
		note = DefaultChangeNote
	}
	out := doc.Clone()
	out.Versions = append(out.Versions, Version{
		ID:        NewID(),
		Content:   doc.Content,
		Version:   doc.CurrentVersion,
		CreatedBy: author,
		Changes:   note,
		CreatedAt: now,
	})
	out.CurrentVersion = doc.CurrentVersion + 1
	out.Content = newContent
	out.LastModifiedBy = author
	out.LastModified = now
	out.UpdatedAt = now
	return out
}

// FindVersion looks a snapshot up by id, falling back to its version number.
func FindVersion(doc Document, ref string) (Version, bool) {
	for _, v := range doc.Versions {
		if v.ID == ref {
			return v, true
		}
	}
	if n, err := strconv.Atoi(ref); err == nil {
		for _, v := range doc.Versions {
			if v.Version == n {
				return v, true
			}
		}
	}
	return Version{}, false
}

// RestoreVersion appends a new version whose content is the named snapshot.
// History is never truncated.
func RestoreVersion(doc Document, versionRef, requester string, now time.Time) (Document, error) {
	if !HasWriteAccess(doc, requester) {
		return Document{}, ErrEditDenied
	}
	v, ok := FindVersion(doc, versionRef)
	if !ok {
		return Document{}, ErrVersionNotFound
	}
	return CreateVersion(doc, v.Content, requester, fmt.Sprintf("Restored to version %d", v.Version), now), nil
}
