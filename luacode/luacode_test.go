package luacode_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopipeline/plumbline/luacode"
	"github.com/gopipeline/plumbline/stage"
)

func TestExecFunctionTransformsInput(t *testing.T) {
	t.Parallel()

	code := luacode.New(`function exec(input) return string.upper(input) end`)

	var out strings.Builder
	err := code(context.Background(), stage.Env{}, strings.NewReader("shout"), &out)
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", out.String())
}

func TestBareChunkResultIsWritten(t *testing.T) {
	t.Parallel()

	code := luacode.New(`return "fixed"`)

	var out strings.Builder
	err := code(context.Background(), stage.Env{}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.String())
}

func TestScriptErrorIsReported(t *testing.T) {
	t.Parallel()

	code := luacode.New(`this is not lua`)

	var out strings.Builder
	err := code(context.Background(), stage.Env{}, strings.NewReader(""), &out)
	require.Error(t, err)
}

func TestLuaStageInsidePipeline(t *testing.T) {
	t.Parallel()

	gen := stage.Bucket(stage.WithContents([]byte("a,b,c")))
	script := stage.New(stage.KindInProcessCode,
		stage.WithCode(luacode.New(`function exec(input) return (string.gsub(input, ",", "-")) end`)))
	require.NoError(t, script.Input(gen))

	out, err := script.Terminus().Contents()
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", string(out))
}
