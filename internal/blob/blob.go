// Package blob stores uploaded issue photos and hands back a reference the
// frontend can embed directly.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists an image under name and returns its public reference.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

const maxBaseLen = 100

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	ext := path.Ext(baseName(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedExtension reports whether ext names an accepted image format.
func AllowedExtension(ext string) bool {
	_, ok := contentTypes[strings.ToLower(ext)]
	return ok
}

// ContentType maps an accepted extension to its MIME type.
func ContentType(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewName builds a collision-free object name of the form
// yyyy/mm/dd/<uuid>_<sanitized filename>.
func NewName(now time.Time, filename string) string {
	now = now.UTC()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%04d/%02d/%02d/%s_%s", now.Year(), int(now.Month()), now.Day(), id, Sanitize(filename))
}

// Sanitize reduces a client supplied filename to [A-Za-z0-9._-].
func Sanitize(filename string) string {
	base := baseName(filename)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "._") == "" {
		return "upload"
	}
	if len(out) > maxBaseLen {
		out = out[len(out)-maxBaseLen:]
	}
	return out
}

// baseName strips any directory part, with either separator.
func baseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		return filename[i+1:]
	}
	return filename
}
