package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/n2code/heatwave"
	"github.com/n2code/heatwave/internal/layout"
)

type cliRequest struct {
	verbose    bool
	quiet      bool
	plain      bool
	configFile string
	document   string
	inDir      string
	imodBin    string
	out        io.Writer
	errOut     io.Writer
	started    bool //arguments were accepted and the document is being worked on
}

type usageError struct {
	cause error
}

func (e *usageError) Error() string {
	return e.cause.Error()
}

func (e *usageError) Unwrap() error {
	return e.cause
}

const (
	exitOk = iota
	exitFailure
	exitUsage
	exitParse
	exitConsistency
	exitToolMissing
	exitToolFailed
	exitFilesystemInvariant
)

func exitCode(err error) int {
	if err == nil {
		return exitOk
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	switch heatwave.KindOf(err) {
	case heatwave.ParseError:
		return exitParse
	case heatwave.ConsistencyError:
		return exitConsistency
	case heatwave.ExternalToolMissingError:
		return exitToolMissing
	case heatwave.ExternalToolFailedError:
		return exitToolFailed
	case heatwave.FilesystemInvariantError:
		return exitFilesystemInvariant
	}
	return exitFailure
}

func (rq *cliRequest) layout() (layout.Config, error) {
	config := layout.DefaultConfig()
	if rq.configFile != "" {
		loaded, err := layout.LoadFile(rq.configFile, config)
		if err != nil {
			return config, err
		}
		config = loaded
	}
	if rq.document != "" {
		config.Document = rq.document
	}
	if rq.inDir != "" {
		config.InDir = rq.inDir
	}
	if rq.imodBin != "" {
		config.ImodBin = rq.imodBin
	}
	return config, nil
}

func (rq *cliRequest) open(forceNew bool) (heatwave.Heatwave, error) {
	settings, err := rq.layout()
	if err != nil {
		return nil, err
	}
	config := heatwave.CreateConfig{
		Layout:    settings,
		ForceNew:  forceNew,
		Fancy:     !rq.plain,
		Terminal:  rq.out,
		Diagnosis: rq.errOut,
	}
	if rq.verbose {
		config.Verbosity = heatwave.VerboseMode
	}
	if rq.quiet {
		config.Verbosity = heatwave.QuietMode
	}
	rq.started = true
	return heatwave.Open(config)
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rq := &cliRequest{out: out, errOut: errOut}
	root := newRootCommand(rq)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err != nil && !rq.started {
		err = &usageError{err}
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		if exitCode(err) == exitUsage {
			fmt.Fprintln(errOut, "Usage help: heatwave --help")
		}
	}
	return exitCode(err)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
