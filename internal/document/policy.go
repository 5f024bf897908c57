package document

// HasReadAccess reports whether identity may read doc. An empty identity is
// anonymous and only satisfies the public case. Archived documents keep
// their access.
func HasReadAccess(doc Document, identity string) bool {
	if doc.IsPublic {
		return true
	}
	if identity == "" {
		return false
	}
	if identity == doc.Author {
		return true
	}
	_, ok := doc.Collaborator(identity)
	return ok
}

// HasWriteAccess reports whether identity may change doc's content.
func HasWriteAccess(doc Document, identity string) bool {
	if identity == "" {
		return false
	}
	if identity == doc.Author {
		return true
	}
	c, ok := doc.Collaborator(identity)
	return ok && c.Permission == PermissionEdit
}

// IsOwner gates delete and sharing management.
func IsOwner(doc Document, identity string) bool {
	return identity != "" && identity == doc.Author
}
