package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObject(t *testing.T) {
	input := map[string]any{
		"name":         "<b>Alice</b>",
		"passwordHash": "$2a$10$<raw>",
		"count":        float64(3),
		"active":       true,
		"tags":         []any{"<i>x</i>", float64(1), nil},
		"profile": map[string]any{
			"bio":          "Tom & Jerry",
			"passwordHash": "<kept>",
		},
	}

	out := Object(input, Options{Raw: []string{"passwordHash"}}).(map[string]any)

	assert.Equal(t, "&lt;b&gt;Alice&lt;&#x2F;b&gt;", out["name"])
	assert.Equal(t, "$2a$10$<raw>", out["passwordHash"])
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, true, out["active"])
	assert.Equal(t, []any{"&lt;i&gt;x&lt;&#x2F;i&gt;", float64(1), nil}, out["tags"])

	profile := out["profile"].(map[string]any)
	assert.Equal(t, "Tom &amp; Jerry", profile["bio"])
	assert.Equal(t, "<kept>", profile["passwordHash"])

	assert.Equal(t, "<b>Alice</b>", input["name"], "input must not be mutated")
	assert.Equal(t, "<i>x</i>", input["tags"].([]any)[0])
}

func TestObject_CustomSanitizer(t *testing.T) {
	out := Object([]any{"<b>a</b>", map[string]any{"k": "<p>b</p>"}}, Options{String: StripTags})
	assert.Equal(t, []any{"a", map[string]any{"k": "b"}}, out)
}

func TestObject_Idempotent(t *testing.T) {
	input := map[string]any{"a": `<x> & "y"`, "b": []any{"'/'"}}
	once := Object(input, Options{})
	assert.Equal(t, once, Object(once, Options{}))
}

func TestObject_Scalar(t *testing.T) {
	assert.Equal(t, "a &amp; b", Object("a & b", Options{}))
	assert.Equal(t, 42, Object(42, Options{}))
	assert.Nil(t, Object(nil, Options{}))
}
