package stage_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopipeline/plumbline/stage"
)

func TestBucketFillsFromUpstreamOutput(t *testing.T) {
	t.Parallel()

	echo := stage.Command("echo", "-n", "abc")
	sink := stage.Bucket()
	require.NoError(t, echo.Output(sink))

	require.NoError(t, echo.Execute(context.Background()))
	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
}

func TestBucketCollectMaxTruncatesWithoutBlockingProducer(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 4096)
	yes := stage.Command("printf", "%s", payload)
	sink := stage.Bucket(stage.WithCollectMax(16))
	require.NoError(t, yes.Output(sink))

	require.NoError(t, yes.Execute(context.Background()))
	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Len(t, out, 16)
	assert.Equal(t, strings.Repeat("x", 16), string(out))
	assert.True(t, sink.Truncated())
	// The whole payload fit in the kernel's pipe buffer, so the producer
	// finished cleanly before the bucket stopped reading.
	assert.True(t, yes.Ok())
}

func TestBucketCollectMaxBreaksEndlessProducer(t *testing.T) {
	t.Parallel()

	cat := stage.Command("cat")
	require.NoError(t, cat.Input(stage.Vent()))

	sink := cat.Terminus()
	require.NoError(t, sink.SetCollectMax(1000))

	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), out)
	assert.True(t, sink.Truncated())
	// The bucket closed its read end, so the endless producer died on a
	// broken pipe instead of running forever.
	assert.False(t, cat.Ok())
	assert.Equal(t, -1, cat.RC())
}

func TestBucketGetLineSplitsBufferedContents(t *testing.T) {
	t.Parallel()

	source := stage.Bucket(stage.WithContents([]byte("one\ntwo\nthree\n")))
	cat := stage.Command("cat")
	require.NoError(t, cat.Input(source))

	collector := stage.Bucket()
	require.NoError(t, cat.Output(collector))
	require.NoError(t, cat.Execute(context.Background()))

	var lines []string
	for {
		line, ok, err := collector.GetLine()
		require.NoError(t, err)
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	// Terminators are retained, so the lines concatenate back into the
	// original contents.
	assert.Equal(t, []string{"one\n", "two\n", "three\n"}, lines)

	// Exhausted: further calls keep reporting false rather than erroring.
	_, ok, err := collector.GetLine()
	require.NoError(t, err)
	assert.False(t, ok)
}
