package stage_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopipeline/plumbline/stage"
)

// A sucking Hose (the default orientation) is a sink: the caller reads
// Handle() for whatever the linked peer wrote.
func TestHoseSuckingReceivesStageOutput(t *testing.T) {
	t.Parallel()

	h := stage.Hose()
	echo := stage.Command("echo", "-n", "hosed")
	require.NoError(t, echo.Output(h))

	require.NoError(t, echo.Execute(context.Background()))

	handle, err := h.Handle()
	require.NoError(t, err)

	out, err := io.ReadAll(handle)
	require.NoError(t, err)
	assert.Equal(t, "hosed", string(out))
	assert.True(t, echo.Ok())
}

// GetLine on a sucking Hose reads the peer's output line by line,
// terminator included, reporting false once the peer closes.
func TestHoseSuckingGetLineReadsPeerOutput(t *testing.T) {
	t.Parallel()

	h := stage.Hose()
	printf := stage.Command("printf", "alpha\\nbeta\\n")
	require.NoError(t, printf.Output(h))

	line, ok, err := h.GetLine()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alpha\n", line)

	line, ok, err = h.GetLine()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "beta\n", line)

	_, ok, err = h.GetLine()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.Close())
	require.NoError(t, printf.Wait())
}

// A gushing Hose is a source: the caller prints into it, closes it, and the
// linked pipeline sees those bytes on its input.
func TestHoseGushingFeedsStageInput(t *testing.T) {
	t.Parallel()

	h := stage.Hose(stage.WithGushing())
	cat := stage.Command("cat")
	require.NoError(t, cat.Input(h))

	require.NoError(t, cat.Execute(context.Background()))

	require.NoError(t, h.Print("Hello, world\n"))
	require.NoError(t, h.Close())

	line, ok, err := cat.Terminus().GetLine()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello, world\n", line)
}

func TestHandleOnNonHoseIsConfigurationError(t *testing.T) {
	t.Parallel()

	b := stage.Bucket()
	_, err := b.Handle()
	require.Error(t, err)
	var cfgErr *stage.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

// Print and GetLine respect the hose's orientation: a sucking handle is
// read-only, a gushing handle is write-only.
func TestHoseOrientationGuardsPrintAndGetLine(t *testing.T) {
	t.Parallel()

	sucking := stage.Hose()
	err := sucking.Print("nope\n")
	require.Error(t, err)
	var cfgErr *stage.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	require.NoError(t, sucking.Close())

	gushing := stage.Hose(stage.WithGushing())
	_, _, err = gushing.GetLine()
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfgErr)
	require.NoError(t, gushing.Close())
}
