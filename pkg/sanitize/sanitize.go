// Package sanitize provides pure, deterministic string transforms applied to
// untrusted input: HTML escaping, tag stripping, URL scheme filtering, path
// and shell metacharacter cleanup, and recursive sanitation of decoded JSON.
//
// Every function is idempotent: applying it twice yields the same result as
// applying it once.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	entityPattern = regexp.MustCompile(`^&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	tagPattern    = regexp.MustCompile(`<[^<>]*>`)
)

// EscapeHTML encodes & < > " ' and / as character references. An ampersand
// that already starts a character reference is left alone.
func EscapeHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '&':
			if loc := entityPattern.FindStringIndex(s[i:]); loc != nil {
				b.WriteString(s[i : i+loc[1]])
				i += loc[1] - 1
				continue
			}
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			b.WriteString("&#x2F;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// StripTags removes markup until none is left, so nested constructs such as
// "<<b>script>" cannot reassemble into a tag.
func StripTags(s string) string {
	for {
		out := tagPattern.ReplaceAllString(s, "")
		if out == s {
			return out
		}
		s = out
	}
}

var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

// SafeURL returns the trimmed URL and true when its scheme is allowed.
// Relative references have no scheme and are allowed. Control characters and
// whitespace are removed and the scheme is lower-cased before the check, so
// "JaVa\tScRiPt:" is rejected like "javascript:".
func SafeURL(raw string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return "", false
	}

	scheme, ok := schemeOf(cleaned)
	if !ok {
		return cleaned, true
	}
	if !allowedSchemes[strings.ToLower(scheme)] {
		return "", false
	}
	return cleaned, true
}

// schemeOf returns the text before the first ':' when it appears before any
// '/', '?' or '#'.
func schemeOf(u string) (string, bool) {
	for i, r := range u {
		switch r {
		case ':':
			return u[:i], i > 0
		case '/', '?', '#':
			return "", false
		}
	}
	return "", false
}

// Path normalizes a relative file path: backslashes become slashes,
// characters outside [A-Za-z0-9._/-] are dropped, and empty, "." and ".."
// segments are removed along with any leading slash.
func Path(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '/', r == '-':
			return r
		}
		return -1
	}, p)

	segments := strings.Split(p, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}

const commandMeta = ";&|$`\\<>(){}[]!*?~#'\"\n\r"

// Command removes shell metacharacters and line breaks.
func Command(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(commandMeta, r) {
			return -1
		}
		return r
	}, s)
}
