package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		source string
		valid  bool
	}{
		{"/organizations/{orgId}/schedules/{scheduleId}", true},
		{"/files/{path=**}", true},
		{"/users/{userId}", true},
		{"", false},
		{"/", false},
		{"/a//b", false},
		{"/a/../b", false},
		{"/a/{x", false},
		{"/a/x}", false},
		{"/a/{1x}", false},
		{"/a/{x}/{x}", false},
		{"/a/{rest=**}/b", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, err := compilePattern(tt.source)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPatternMatch(t *testing.T) {
	p, err := compilePattern("/organizations/{orgId}/schedules/{scheduleId}")
	require.NoError(t, err)

	vars, ok := p.match("/organizations/orgA/schedules/s1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"orgId": "orgA", "scheduleId": "s1"}, vars)

	_, ok = p.match("organizations/orgA/schedules/s1/")
	assert.True(t, ok, "leading and trailing slashes are ignored")

	for _, path := range []string{
		"/organizations/orgA/schedules",
		"/organizations/orgA/schedules/s1/extra",
		"/organizations/orgA/members/s1",
		"/organizations/../schedules/s1",
		"/organizations//schedules/s1",
	} {
		_, ok := p.match(path)
		assert.False(t, ok, path)
	}
}

func TestPatternMatchRest(t *testing.T) {
	p, err := compilePattern("/files/{path=**}")
	require.NoError(t, err)

	vars, ok := p.match("/files/a/b/c.txt")
	require.True(t, ok)
	assert.Equal(t, "a/b/c.txt", vars["path"])

	vars, ok = p.match("/files")
	require.True(t, ok)
	assert.Equal(t, "", vars["path"])

	_, ok = p.match("/other/a")
	assert.False(t, ok)
}
