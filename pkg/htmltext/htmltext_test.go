package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"tags removed", "<p>Hello <b>world</b></p>", "Hello world"},
		{"script dropped", `<p>keep</p><script>alert("x")</script>`, "keep"},
		{"style dropped", "<style>p{color:red}</style><p>keep</p>", "keep"},
		{"whitespace collapsed", "<p>a\n\n  b\t c</p>", "a b c"},
		{"empty", "", ""},
		{"vietnamese preserved", "<p>Thủ tục hải quan</p>", "Thủ tục hải quan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.html))
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("<p>short text</p>", 200))

	long := "<p>" + strings.Repeat("từ ", 100) + "</p>"
	got := Excerpt(long, 50)
	assert.LessOrEqual(t, len([]rune(got)), 51) // 50 runes plus the ellipsis
	assert.True(t, strings.HasSuffix(got, "…"))

	// Exactly at the limit: no ellipsis
	assert.Equal(t, strings.Repeat("x", 50), Excerpt(strings.Repeat("x", 50), 50))
}
