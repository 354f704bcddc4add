package stage_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gopipeline/plumbline/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewStageStartsReady(t *testing.T) {
	t.Parallel()

	s := stage.Command("true")
	assert.True(t, s.Ready())
	assert.False(t, s.Running())
	assert.False(t, s.Done())
}

func TestEmptyCommandLineIsConfigurationError(t *testing.T) {
	t.Parallel()

	s := stage.Command("")
	assert.False(t, s.Ready())
	require.Error(t, s.Error())
	var cfgErr *stage.ConfigurationError
	assert.ErrorAs(t, s.Error(), &cfgErr)
}

func TestLifecycleReachesDone(t *testing.T) {
	t.Parallel()

	s := stage.Command("true")
	require.NoError(t, s.Execute(context.Background()))
	require.NoError(t, s.Wait())
	assert.True(t, s.Done())
	assert.True(t, s.Ok())
	assert.Equal(t, 0, s.RC())
}

func TestWaitIsIdempotent(t *testing.T) {
	t.Parallel()

	s := stage.Command("sh", "-c", "exit 4")
	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, 4, s.RC())
	assert.Equal(t, 4, s.RC())
	assert.True(t, s.Done())
}

func TestChildFailureIsReflectedInOkAndRC(t *testing.T) {
	t.Parallel()

	s := stage.Command("false")
	require.NoError(t, s.Execute(context.Background()))
	_ = s.Wait()
	assert.False(t, s.Ok())
	assert.NotEqual(t, 0, s.RC())
}

// TestBackReferenceDoesNotKeepUpstreamAlive: dropping every external
// reference to an upstream stage while only its downstream peer survives
// must let the upstream become collectible. A's forward Output(B) edge
// owns B; B's back-reference to A must be weak.
func TestBackReferenceDoesNotKeepUpstreamAlive(t *testing.T) {
	b := stage.Command("cat")
	func() {
		a := stage.Command("true")
		require.NoError(t, a.Output(b))
		assert.Same(t, a, b.InputPeer())
	}()

	runtime.GC()
	runtime.GC()

	assert.Nil(t, b.InputPeer())
}
