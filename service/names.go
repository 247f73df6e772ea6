package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TokenLength is the number of hex characters in a proof token
const TokenLength = 12

// maxNameBytes keeps stored names well under common filesystem limits
const maxNameBytes = 200

// fallbackName is used when sanitizing leaves nothing usable
const fallbackName = "proof.pdf"

// reservedSuffix is claimed by the local blob store for attribute files
const reservedSuffix = ".attrs"

var tokenPattern = regexp.MustCompile(fmt.Sprintf("^[0-9a-f]{%d}$", TokenLength))

// NewToken returns a fresh proof token taken from a random UUID
func NewToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:TokenLength]
}

// ValidToken reports whether token has the shape NewToken produces
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// IsPDFName reports whether a declared filename carries a .pdf extension
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// SanitizeName turns an untrusted display name into a single safe path component.
// Path separators become underscores, control characters are dropped, and names
// that would resolve to the directory itself or its parent fall back to proof.pdf.
func SanitizeName(name string) string {
	name = strings.ToValidUTF8(name, "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(b.String())
	if len(clean) > maxNameBytes {
		clean = strings.TrimSpace(truncateName(clean, maxNameBytes))
	}
	if clean == "" || clean == "." || clean == ".." {
		return fallbackName
	}
	if strings.HasSuffix(clean, reservedSuffix) {
		clean = strings.TrimSuffix(clean, reservedSuffix) + "_attrs"
	}
	return clean
}

// ValidName reports whether name is already a safe stored name.
// Used on the read path, where nothing may be rewritten.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return SanitizeName(name) == name
}

// truncateName shortens name to at most limit bytes, keeping its extension
// and never splitting a UTF-8 sequence.
func truncateName(name string, limit int) string {
	ext := filepath.Ext(name)
	if len(ext) >= limit {
		ext = ""
	}
	base := name[:len(name)-len(ext)]
	keep := limit - len(ext)
	for keep > 0 && !utf8.RuneStart(base[keep]) {
		keep--
	}
	return base[:keep] + ext
}
