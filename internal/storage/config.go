package storage

import (
	"fmt"
	"strings"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
)

// ExportKey is the object key for a document export at a given version.
func ExportKey(docID string, version int) string {
	return fmt.Sprintf("documents/%s/v%d.md", docID, version)
}

// ExportFilename is the download name offered for an export.
func ExportFilename(title string, version int) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, strings.TrimSpace(title))
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("%s-v%d.md", name, version)
}

// Configured reports whether the MinIO settings are enough to connect.
func Configured(cfg config.MinIOConfig) bool {
	return cfg.Endpoint != "" && cfg.Bucket != ""
}
