package codec

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// FormatRegistry is a bidirectional mime type / extension map where the
// first pairing recorded for either side is canonical and never replaced.
type FormatRegistry struct {
	extensionByMime map[string]string
	mimeByExtension map[string]string
}

func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{
		extensionByMime: make(map[string]string),
		mimeByExtension: make(map[string]string),
	}
}

func (r *FormatRegistry) Record(mimeType, extension string) {
	mimeType = normalizeMime(mimeType)
	extension = normalizeExtension(extension)
	if mimeType == "" || extension == "" {
		return
	}
	if _, ok := r.extensionByMime[mimeType]; !ok {
		r.extensionByMime[mimeType] = extension
	}
	if _, ok := r.mimeByExtension[extension]; !ok {
		r.mimeByExtension[extension] = mimeType
	}
}

func (r *FormatRegistry) ExtensionFor(mimeType string) (string, bool) {
	ext, ok := r.extensionByMime[normalizeMime(mimeType)]
	return ext, ok
}

func (r *FormatRegistry) MimeTypeFor(extension string) (string, bool) {
	mime, ok := r.mimeByExtension[normalizeExtension(extension)]
	return mime, ok
}

func (r *FormatRegistry) MimeTypes() []string {
	return sortedKeys(r.extensionByMime)
}

func (r *FormatRegistry) Extensions() []string {
	return sortedKeys(r.mimeByExtension)
}

func normalizeMime(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func normalizeExtension(extension string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
