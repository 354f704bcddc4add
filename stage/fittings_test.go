package stage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopipeline/plumbline/stage"
)

func TestPlugAsSourceYieldsEmptyOutput(t *testing.T) {
	t.Parallel()

	cat := stage.Command("cat")
	require.NoError(t, cat.Input(stage.Plug()))

	sink := stage.Bucket()
	require.NoError(t, cat.Output(sink))

	require.NoError(t, cat.Execute(context.Background()))
	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, cat.Ok())
}

func TestPlugAsSinkRejectsEveryWrite(t *testing.T) {
	t.Parallel()

	// dd retries nothing: the first failed write makes it exit non-zero.
	dd := stage.Command("dd", "if=/dev/zero", "count=1")
	require.NoError(t, dd.Output(stage.Plug()))
	require.NoError(t, dd.Stderr("/dev/null"))

	require.NoError(t, dd.Execute(context.Background()))
	assert.False(t, dd.Ok())
	assert.NotEqual(t, 0, dd.RC())
	assert.NotEmpty(t, dd.ErrorMessage())
}

func TestVentAsSourceIsAllZeroBytes(t *testing.T) {
	t.Parallel()

	head := stage.Command("head", "-c", "4")
	require.NoError(t, head.Input(stage.Vent()))

	sink := stage.Bucket()
	require.NoError(t, head.Output(sink))

	require.NoError(t, head.Execute(context.Background()))
	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}

func TestPRNGSourceYieldsEntropy(t *testing.T) {
	t.Parallel()

	head := stage.Command("head", "-c", "8")
	require.NoError(t, head.Input(stage.PRNG()))

	out, err := head.Terminus().Contents()
	require.NoError(t, err)
	assert.Len(t, out, 8)
}

func TestReapNeverBlocks(t *testing.T) {
	t.Parallel()

	sleep := stage.Command("sleep", "0.2")
	require.NoError(t, sleep.Execute(context.Background()))
	// The child is still running; a non-blocking reap must not join it.
	assert.Equal(t, 0, stage.Reap(0))
	require.NoError(t, sleep.Wait())
}

func TestBucketPoursPresetContents(t *testing.T) {
	t.Parallel()

	source := stage.Bucket(stage.WithContents([]byte("poured\n")))
	cat := stage.Command("cat")
	require.NoError(t, cat.Input(source))

	collector := stage.Bucket()
	require.NoError(t, cat.Output(collector))

	require.NoError(t, cat.Execute(context.Background()))
	out, err := collector.Contents()
	require.NoError(t, err)
	assert.Equal(t, "poured\n", string(out))
}
