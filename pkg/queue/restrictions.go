package queue

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/waifuvault/WaifuFiles/pkg/models"
)

// Restrictions is the upload policy the queue enforces before a file ever
// starts transferring.
type Restrictions struct {
	MaxFileSize     int64
	BannedMimeTypes []string
}

// ParseRestrictions converts the wire policy into an enforceable form.
// Values arrive as JSON numbers or comma-separated strings.
func ParseRestrictions(list []models.Restriction) Restrictions {
	var r Restrictions
	for _, restriction := range list {
		switch restriction.Type {
		case models.RestrictionMaxFileSize:
			switch v := restriction.Value.(type) {
			case float64:
				r.MaxFileSize = int64(v)
			case int:
				r.MaxFileSize = int64(v)
			case int64:
				r.MaxFileSize = v
			}
		case models.RestrictionBannedMimeType:
			if s, ok := restriction.Value.(string); ok && s != "" {
				r.BannedMimeTypes = strings.Split(s, ",")
			}
		}
	}
	return r
}

// Check returns a user-facing rejection message, or "" when the file
// passes. The MIME type is sniffed from content, not trusted from the
// extension.
func (r Restrictions) Check(path string, size int64) string {
	if r.MaxFileSize > 0 && size > r.MaxFileSize {
		return fmt.Sprintf("File too large (%s). Max size: %s", formatFileSize(size), formatFileSize(r.MaxFileSize))
	}
	if len(r.BannedMimeTypes) > 0 {
		detected, err := mimetype.DetectFile(path)
		if err == nil && slices.Contains(r.BannedMimeTypes, detected.String()) {
			return "File type not allowed: " + detected.String()
		}
	}
	return ""
}

func formatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMG"[exp])
}
