package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestFileRecorder_AppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(FileConfig{Dir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, &Event{Type: EventTypeRateLimited, Code: "RATE_LIMITED"}))
	require.NoError(t, rec.Record(ctx, &Event{Type: EventTypeAccessDenied, Code: "FORBIDDEN"}))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	events := readEvents(t, filepath.Join(dir, "audit.log"))
	require.Len(t, events, 2)
	assert.Equal(t, "RATE_LIMITED", events[0].Code)
	assert.Equal(t, EventTypeAccessDenied, events[1].Type)

	assert.Error(t, rec.Record(ctx, &Event{}), "closed recorder")

	// reopening appends
	rec, err = NewFileRecorder(FileConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, rec.Record(ctx, &Event{Type: EventTypeSessionRevoked}))
	require.NoError(t, rec.Close())
	assert.Len(t, readEvents(t, filepath.Join(dir, "audit.log")), 3)
}

func TestFileRecorder_RotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(FileConfig{Dir: dir, MaxSize: 200, MaxFiles: 2})
	require.NoError(t, err)
	defer rec.Close()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, rec.Record(ctx, &Event{Type: EventTypeAccessDenied, Message: strings.Repeat("x", 60)}))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.Len(t, rotated, 2)

	info, err := os.Stat(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(200))
}
