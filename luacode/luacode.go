// Package luacode adapts a Lua chunk into a stage.CodeFunc, letting an
// InProcessCode stage be scripted instead of compiled in.
package luacode

import (
	"context"
	"fmt"
	"io"

	lua "github.com/Shopify/go-lua"

	"github.com/gopipeline/plumbline/stage"
)

// New compiles chunk into a stage.CodeFunc. The script's entire stdin is
// read into a Lua global named "input" (as a string) before the chunk
// runs; if the chunk defines a global function "exec", it is called with
// input and its first return value (coerced to a string) is written to
// stdout. Otherwise the chunk's own top-of-stack value after running, if
// any, is written instead.
func New(chunk string) stage.CodeFunc {
	return func(_ context.Context, _ stage.Env, stdin io.Reader, stdout io.Writer) error {
		in, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("luacode: reading stdin: %w", err)
		}

		l := lua.NewState()
		lua.OpenLibraries(l)

		l.PushString(string(in))
		l.SetGlobal("input")

		if err := lua.DoString(l, chunk); err != nil {
			return fmt.Errorf("luacode: running script: %w", err)
		}

		l.Global("exec")
		if l.TypeOf(-1) == lua.TypeFunction {
			l.PushString(string(in))
			if err := l.ProtectedCall(1, 1, 0); err != nil {
				return fmt.Errorf("luacode: exec: %w", err)
			}
			out, _ := l.ToString(-1)
			l.Pop(1)
			_, err := io.WriteString(stdout, out)
			return err
		}
		l.Pop(1)

		if l.Top() > 0 {
			out, _ := l.ToString(-1)
			l.Pop(1)
			_, err := io.WriteString(stdout, out)
			return err
		}
		return nil
	}
}
