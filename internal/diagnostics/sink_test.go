package diagnostics_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/fastly-mcp/internal/diagnostics"
)

var fixedClock = func() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
}

func TestSink_WritesTimestampedLines(t *testing.T) {
	var file, console bytes.Buffer
	sink := diagnostics.New(
		diagnostics.WithWriter(&file),
		diagnostics.WithWriter(&console),
		diagnostics.WithClock(fixedClock),
	)

	sink.Log("=== Server Starting ===")
	sink.Log("Response status: 200")
	require.NoError(t, sink.Close())

	want := "2025-03-14T15:09:26.535Z: === Server Starting ===\n" +
		"2025-03-14T15:09:26.535Z: Response status: 200\n"
	assert.Equal(t, want, file.String())
	assert.Equal(t, want, console.String(), "console mirrors the file")
}

func TestSink_Redacts(t *testing.T) {
	var buf bytes.Buffer
	sink := diagnostics.New(
		diagnostics.WithWriter(&buf),
		diagnostics.WithRedactor(func(s string) string { return strings.ReplaceAll(s, "hunter2", "[REDACTED]") }),
	)
	sink.Log("token is hunter2")
	require.NoError(t, sink.Close())

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "token is [REDACTED]")
}

type blockingWriter struct {
	release chan struct{}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestSink_NeverBlocksOnSlowWriter(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	sink := diagnostics.New(diagnostics.WithWriter(w), diagnostics.WithBuffer(2))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sink.Log("line")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a stalled writer")
	}

	assert.Greater(t, sink.Dropped(), uint64(0))
	close(w.release)
	require.NoError(t, sink.Close())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSink_WriteErrorsAreSwallowed(t *testing.T) {
	var buf bytes.Buffer
	sink := diagnostics.New(diagnostics.WithWriter(failingWriter{}), diagnostics.WithWriter(&buf))
	sink.Log("still delivered")
	require.NoError(t, sink.Close())

	assert.Equal(t, uint64(1), sink.WriteErrors())
	assert.Contains(t, buf.String(), "still delivered", "other writers are unaffected")
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	sink := diagnostics.New()
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	sink.Log("after close is a no-op")

	var nilSink *diagnostics.Sink
	nilSink.Log("nil sink is a no-op")
	assert.NoError(t, nilSink.Close())
}

func TestSink_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	f, err := diagnostics.OpenFile(path)
	require.NoError(t, err)

	sink := diagnostics.New(diagnostics.WithFile(f), diagnostics.WithClock(fixedClock))
	sink.Log("new run")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n2025-03-14T15:09:26.535Z: new run\n", string(data))
}

func TestRedisStream_MirrorsLines(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	stream := diagnostics.NewRedisStream(client, "diag", diagnostics.WithMaxLen(100))
	sink := diagnostics.New(diagnostics.WithWriter(stream), diagnostics.WithClock(fixedClock))
	sink.Log("Handling CallTool request for tool: fastly_api")
	sink.Log("Response status: 200")
	require.NoError(t, sink.Close())

	msgs, err := client.XRange(context.Background(), "diag", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2025-03-14T15:09:26.535Z: Handling CallTool request for tool: fastly_api", msgs[0].Values["line"])
	assert.Equal(t, uint64(0), sink.WriteErrors())
}

func TestRedisStream_UnavailableIsBestEffort(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	var buf bytes.Buffer
	stream := diagnostics.NewRedisStream(client, "diag", diagnostics.WithWriteTimeout(200*time.Millisecond))
	sink := diagnostics.New(diagnostics.WithWriter(stream), diagnostics.WithWriter(&buf))
	sink.Log("redis is down")
	require.NoError(t, sink.Close())

	assert.Equal(t, uint64(1), sink.WriteErrors())
	assert.Contains(t, buf.String(), "redis is down")
}
