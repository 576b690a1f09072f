package sanitize

// Options controls Object.
type Options struct {
	// String is applied to every string value. Defaults to EscapeHTML.
	String func(string) string
	// Raw names fields copied unchanged at any depth, e.g. "passwordHash".
	Raw []string
}

// Object returns a sanitized deep copy of v, which is expected to be decoded
// JSON (map[string]any, []any, string, numbers, bools, nil). v is not mutated.
func Object(v any, opts Options) any {
	fn := opts.String
	if fn == nil {
		fn = EscapeHTML
	}
	raw := make(map[string]bool, len(opts.Raw))
	for _, name := range opts.Raw {
		raw[name] = true
	}
	return walk(v, fn, raw)
}

func walk(v any, fn func(string) string, raw map[string]bool) any {
	switch val := v.(type) {
	case string:
		return fn(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if raw[k] {
				out[k] = child
				continue
			}
			out[k] = walk(child, fn, raw)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = walk(child, fn, raw)
		}
		return out
	default:
		return v
	}
}
