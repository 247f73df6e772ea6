package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNewToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewToken()
		assert.Len(t, token, TokenLength)
		assert.True(t, ValidToken(token), token)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("abc123def456"))
	assert.False(t, ValidToken("ABC123DEF456"))
	assert.False(t, ValidToken("abc123"))
	assert.False(t, ValidToken("abc123def4567"))
	assert.False(t, ValidToken("../abc123def"))
	assert.False(t, ValidToken(""))
}

func TestIsPDFName(t *testing.T) {
	assert.True(t, IsPDFName("invoice.pdf"))
	assert.True(t, IsPDFName("INVOICE.PDF"))
	assert.False(t, IsPDFName("invoice.pdf.exe"))
	assert.False(t, IsPDFName("invoice"))
	assert.False(t, IsPDFName(""))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "invoice.pdf", "invoice.pdf"},
		{"forward slashes", "a/b/c.pdf", "a_b_c.pdf"},
		{"backslashes", `a\b.pdf`, "a_b.pdf"},
		{"traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"parent only", "..", fallbackName},
		{"dot only", ".", fallbackName},
		{"empty", "", fallbackName},
		{"whitespace", "   ", fallbackName},
		{"control characters", "inv\x00oice\n.pdf", "invoice.pdf"},
		{"unicode kept", "Überweisung – März.pdf", "Überweisung – März.pdf"},
		{"spaces trimmed", "  proof.pdf ", "proof.pdf"},
		{"attribute suffix", "menu.attrs", "menu_attrs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, `\`)
			assert.True(t, ValidName(got))
		})
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("é", 300) + ".pdf"

	got := SanitizeName(long)
	assert.LessOrEqual(t, len(got), maxNameBytes)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, got, SanitizeName(got))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("invoice.pdf"))
	assert.False(t, ValidName("../invoice.pdf"))
	assert.False(t, ValidName("a/b.pdf"))
	assert.False(t, ValidName(".."))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName(" padded.pdf"))
}
