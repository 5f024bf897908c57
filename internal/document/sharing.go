package document

import (
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
)

// Grant gives target the permission on doc. An existing grant is overwritten
// in place, so a collaborator never appears twice.
func Grant(doc Document, target string, perm Permission, requester string, now time.Time) (Document, error) {
	if !IsOwner(doc, requester) {
		return Document{}, ErrShareDenied
	}
	if target == "" {
		return Document{}, apperr.InvalidArgument("collaborator is required")
	}
	if target == requester {
		return Document{}, ErrSelfShare
	}
	if _, err := ParsePermission(string(perm)); err != nil {
		return Document{}, err
	}
	out := doc.Clone()
	for i := range out.Collaborators {
		if out.Collaborators[i].User == target {
			out.Collaborators[i].Permission = perm
			return out, nil
		}
	}
	out.Collaborators = append(out.Collaborators, Collaborator{User: target, Permission: perm, SharedAt: now})
	return out, nil
}

// Revoke removes any grant held by target. Revoking a non-collaborator is a no-op.
func Revoke(doc Document, target, requester string) (Document, error) {
	if !IsOwner(doc, requester) {
		return Document{}, ErrShareDenied
	}
	out := doc.Clone()
	kept := out.Collaborators[:0]
	for _, c := range out.Collaborators {
		if c.User != target {
			kept = append(kept, c)
		}
	}
	out.Collaborators = kept
	return out, nil
}
