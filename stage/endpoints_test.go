package stage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopipeline/plumbline/stage"
)

func TestFilePathAsInputFeedsStage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o644))

	cat := stage.Command("cat")
	require.NoError(t, cat.Input(path))

	sink := stage.Bucket()
	require.NoError(t, cat.Output(sink))

	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Equal(t, "from-file\n", string(out))
	assert.True(t, cat.Ok())
}

func TestFilePathAsOutputCollectsIntoFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.txt")
	echo := stage.Command("echo", "-n", "to-file")
	require.NoError(t, echo.Output(path))

	require.NoError(t, echo.Execute(context.Background()))
	require.NoError(t, echo.Wait())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "to-file", string(data))
}

func TestPipeShortcutAllocatesDownstreamCommand(t *testing.T) {
	t.Parallel()

	echo := stage.Command("echo", "-n", "abc")
	require.NoError(t, echo.Output("| tr a-z A-Z"))

	tr := echo.OutputPeer()
	require.NotNil(t, tr)

	out, err := tr.Terminus().Contents()
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))
}

func TestUpstreamShortcutFeedsFromCommand(t *testing.T) {
	t.Parallel()

	upper := stage.Command("tr", "a-z", "A-Z")
	require.NoError(t, upper.Input("echo -n xyz |"))

	out, err := upper.Terminus().Contents()
	require.NoError(t, err)
	assert.Equal(t, "XYZ", string(out))
}

func TestRawHandleAsInput(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		w.Write([]byte("raw"))
		w.Close()
	}()

	cat := stage.Command("cat")
	require.NoError(t, cat.Input(r))

	out, err := cat.Terminus().Contents()
	require.NoError(t, err)
	assert.Equal(t, "raw", string(out))
}

func TestCallableBecomesInProcessStage(t *testing.T) {
	t.Parallel()

	upper := stage.Command("tr", "a-z", "A-Z")
	require.NoError(t, upper.Input(func(ctx context.Context, env stage.Env, stdin io.Reader, stdout io.Writer) error {
		_, err := io.WriteString(stdout, "lower\n")
		return err
	}))

	code := upper.InputPeer()
	require.NotNil(t, code)

	out, err := upper.Terminus().Contents()
	require.NoError(t, err)
	assert.Equal(t, "LOWER\n", string(out))

	// In-process stages never fork a real child.
	assert.Equal(t, 0, code.PID())
	assert.True(t, code.Ok())
}

func TestBareCommandDefaultsToPlugAndBucket(t *testing.T) {
	t.Parallel()

	echo := stage.Command("echo", "-n", "defaulted")
	sink := echo.Terminus()
	require.NotSame(t, echo, sink)

	out, err := sink.Contents()
	require.NoError(t, err)
	assert.Equal(t, "defaulted", string(out))

	// An unlinked input slot was filled in with a Plug at launch.
	assert.NotNil(t, echo.InputPeer())
}
