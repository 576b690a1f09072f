package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<script>alert("x")</script>`, `&lt;script&gt;alert(&quot;x&quot;)&lt;&#x2F;script&gt;`},
		{`Tom & Jerry's`, `Tom &amp; Jerry&#x27;s`},
		{`already &amp; escaped &#x27; &#39;`, `already &amp; escaped &#x27; &#39;`},
		{`& not an entity;`, `&amp; not an entity;`},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeHTML(tt.in))
		})
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<b>bold</b>`, `bold`},
		{`<<b>script>alert(1)<</b>/script>`, `alert(1)`},
		{`<img src=x onerror=alert(1)>text`, `text`},
		{`a < b and c > d`, `a  d`},
		{`no tags`, `no tags`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTags(tt.in))
		})
	}
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://example.com/a?b=c", "https://example.com/a?b=c", true},
		{"HTTP://example.com", "HTTP://example.com", true},
		{"mailto:ops@example.com", "mailto:ops@example.com", true},
		{"/relative/path", "/relative/path", true},
		{"page.html#top", "page.html#top", true},
		{"javascript:alert(1)", "", false},
		{"JaVa\tScRiPt:alert(1)", "", false},
		{" \x00javascript:alert(1)", "", false},
		{"data:text/html;base64,PHNjcmlwdD4=", "", false},
		{"vbscript:msgbox", "", false},
		{"file:///etc/passwd", "", false},
		{"ftp://example.com", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := SafeURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"../../etc/passwd", "etc/passwd"},
		{`..\..\windows\system32`, "windows/system32"},
		{"/absolute//path/./file.txt", "absolute/path/file.txt"},
		{"uploads/my file$.png", "uploads/myfile.png"},
		{"a/.\x00./b", "a/b"},
		{"reports/2024-01_final.pdf", "reports/2024-01_final.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.in))
		})
	}
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "ls -la tmp rm -rf /", Command("ls -la tmp; rm -rf /*"))
	assert.Equal(t, "cat file rm -rf ", Command("cat file; rm -rf `~`\n"))
	assert.Equal(t, "echo hi", Command(`echo "hi"`))
	assert.Equal(t, "x", Command("$(x)"))
}

func TestIdempotency(t *testing.T) {
	inputs := []string{
		`<script>alert("x")</script>`,
		`Tom & Jerry's / <b>`,
		`&amp;&lt;&#x2F;&#39;`,
		`<<b>script>alert(1)<</b>/script>`,
		`../..\\a//b/./c`,
		"rm -rf / ; echo `id` $(whoami)",
		"JaVa\tScRiPt:alert(1)",
		"https://example.com/x",
		"",
	}
	funcs := map[string]func(string) string{
		"EscapeHTML": EscapeHTML,
		"StripTags":  StripTags,
		"Path":       Path,
		"Command":    Command,
		"SafeURL": func(s string) string {
			out, _ := SafeURL(s)
			return out
		},
	}
	for name, fn := range funcs {
		for _, in := range inputs {
			once := fn(in)
			assert.Equal(t, once, fn(once), "%s not idempotent for %q", name, in)
		}
	}
}
