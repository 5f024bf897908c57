package document

import (
	"time"
)

// UpdateCommand is a validated partial update. Nil fields are left untouched.
type UpdateCommand struct {
	Title      *string
	Content    *string
	IsPublic   *bool
	Tags       []string
	SetTags    bool
	IsArchived *bool
	ChangeNote string

	// ExpectedVersion, when set, must equal the document's current version.
	ExpectedVersion *int
}

// Change labels reported back to callers.
const (
	ChangeTitle      = "Title updated"
	ChangeContent    = "Content updated"
	ChangeVisibility = "Visibility updated"
	ChangeTags       = "Tags updated"
	ChangeArchived   = "Archive state updated"
)

// ApplyUpdate applies cmd on behalf of requester. A content change goes
// through CreateVersion; visibility and archive state are owner-only.
func ApplyUpdate(doc Document, cmd UpdateCommand, requester string, now time.Time) (Document, []string, error) {
	if !HasWriteAccess(doc, requester) {
		return Document{}, nil, ErrEditDenied
	}
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != doc.CurrentVersion {
		return Document{}, nil, ErrStaleVersion
	}
	if (cmd.IsPublic != nil && *cmd.IsPublic != doc.IsPublic) ||
		(cmd.IsArchived != nil && *cmd.IsArchived != doc.IsArchived) {
		if !IsOwner(doc, requester) {
			return Document{}, nil, ErrEditDenied
		}
	}

	out := doc.Clone()
	var changes []string

	if cmd.Title != nil {
		title, err := NormalizeTitle(*cmd.Title)
		if err != nil {
			return Document{}, nil, err
		}
		if title != out.Title {
			out.Title = title
			changes = append(changes, ChangeTitle)
		}
	}
	if cmd.Content != nil && *cmd.Content != out.Content {
		note := cmd.ChangeNote
		if note == "" {
			note = ChangeContent
		}
		out = CreateVersion(out, *cmd.Content, requester, note, now)
		changes = append(changes, ChangeContent)
	}
	if cmd.IsPublic != nil && *cmd.IsPublic != out.IsPublic {
		out.IsPublic = *cmd.IsPublic
		changes = append(changes, ChangeVisibility)
	}
	if cmd.SetTags {
		tags := NormalizeTags(cmd.Tags)
		if !equalStrings(tags, out.Tags) {
			out.Tags = tags
			changes = append(changes, ChangeTags)
		}
	}
	if cmd.IsArchived != nil && *cmd.IsArchived != out.IsArchived {
		out.IsArchived = *cmd.IsArchived
		changes = append(changes, ChangeArchived)
	}

	if len(changes) == 0 {
		return Document{}, nil, ErrNoChanges
	}
	out.LastModified = now
	out.LastModifiedBy = requester
	out.UpdatedAt = now
	return out, changes, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
