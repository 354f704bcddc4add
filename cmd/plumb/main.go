// Command plumb is a small demonstrator for package stage: it builds a
// pipeline graph from command-line flags and runs it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/gopipeline/plumbline/isatty"
	"github.com/gopipeline/plumbline/stage"
)

func main() {
	var (
		nullInput  = pflag.BoolP("null-input", "n", false, "feed the command a Plug instead of stdin (always EOF)")
		capture    = pflag.BoolP("capture", "c", false, "collect output into memory and print it, instead of streaming to stdout")
		collectMax ByteSize
	)
	pflag.Var(&collectMax, "collect-max", "cap --capture at this many bytes, accepting k/M/G and Ki/Mi/Gi suffixes (0 = unlimited)")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: plumb [flags] program [args...]")
		os.Exit(2)
	}

	cmd := stage.New(stage.KindExternalProgram, stage.WithProgram(args[0]), stage.WithArgs(args[1:]...))

	if *nullInput {
		if err := cmd.Input(stage.Plug()); err != nil {
			exitf(err)
		}
	} else {
		if tty, _ := isatty.Isatty(os.Stdin.Fd()); tty {
			fmt.Fprintln(os.Stderr, "plumb: reading from terminal, press Ctrl-D to end input")
		}
		// An unlinked input would default to a Plug (immediate EOF), so the
		// host's stdin has to be wired in explicitly.
		if err := cmd.Input(stage.FileHandle(os.Stdin)); err != nil {
			exitf(err)
		}
	}

	if *capture {
		opts := []stage.BucketOption{}
		if collectMax > 0 {
			opts = append(opts, stage.WithCollectMax(int(collectMax)))
		}
		sink := stage.Bucket(opts...)
		if err := cmd.Output(sink); err != nil {
			exitf(err)
		}
		if err := cmd.Execute(context.Background()); err != nil {
			exitf(err)
		}
		out, err := sink.Contents()
		if err != nil {
			exitf(err)
		}
		os.Stdout.Write(out)
		if !cmd.Ok() {
			os.Exit(exitCodeOf(cmd))
		}
		return
	}

	// Same for output: stream to the host's stdout rather than the default
	// collecting Bucket.
	if err := cmd.Output(stage.FileHandle(os.Stdout)); err != nil {
		exitf(err)
	}
	if err := cmd.Execute(context.Background()); err != nil {
		exitf(err)
	}
	if !cmd.Ok() {
		os.Exit(exitCodeOf(cmd))
	}
}

func exitCodeOf(s *stage.Stage) int {
	rc := s.RC()
	if rc < 0 {
		return 1
	}
	return rc
}

func exitf(err error) {
	fmt.Fprintln(os.Stderr, "plumb:", err)
	os.Exit(1)
}
