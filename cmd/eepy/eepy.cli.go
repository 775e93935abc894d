package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/itsatony/go-eepy"
	"github.com/urfave/cli/v3"
)

// app carries the streams every command writes to.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// exitError pairs a failure with the process exit code it maps to.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, describe(e.err))
}

func (e *exitError) Unwrap() error {
	return e.err
}

func fail(code int, msg string, err error) error {
	return &exitError{code: code, msg: msg, err: err}
}

// describe prefers the line-level compiler and runtime errors over the
// categorized wrapper, since they carry the template position.
func describe(err error) string {
	var rerr *eepy.RenderError
	if errors.As(err, &rerr) {
		return rerr.Error()
	}
	var cerr *eepy.CompileError
	if errors.As(err, &cerr) {
		return cerr.Error()
	}
	return err.Error()
}

// run is the main entry point for the CLI, separated for testing
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	err := a.command().Run(ctx, args)
	if err == nil {
		return ExitCodeSuccess
	}

	fmt.Fprintln(stderr, err.Error())
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitCodeUsageError
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      CLIName,
		Usage:     UsageRoot,
		Version:   eepy.Version,
		Reader:    a.stdin,
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.DefaultShowRootCommandHelp(cmd)
		},
		OnUsageError: func(ctx context.Context, cmd *cli.Command, err error, isSubcommand bool) error {
			return err
		},
		ExitErrHandler: func(ctx context.Context, cmd *cli.Command, err error) {},
		Commands: []*cli.Command{
			{
				Name:      CmdNameRender,
				Usage:     UsageRender,
				ArgsUsage: ArgsUsageTemplate,
				Flags: append(rendererFlags(),
					&cli.StringFlag{Name: FlagData, Aliases: []string{FlagDataShort}, Usage: UsageData},
					&cli.StringFlag{Name: FlagDataFile, Aliases: []string{FlagDataFileShort}, Usage: UsageDataFile},
					&cli.StringFlag{Name: FlagOutput, Aliases: []string{FlagOutputShort}, Usage: UsageOutput, Value: FlagDefaultOutput},
				),
				Action: a.renderAction,
			},
			{
				Name:      CmdNameCompile,
				Usage:     UsageCompile,
				ArgsUsage: ArgsUsageTemplate,
				Flags: append(rendererFlags(),
					&cli.BoolFlag{Name: FlagInstructions, Usage: UsageInstructions},
				),
				Action: a.compileAction,
			},
			{
				Name:      CmdNameCheck,
				Usage:     UsageCheck,
				ArgsUsage: ArgsUsageMany,
				Flags: append(rendererFlags(),
					&cli.StringFlag{Name: FlagFormat, Aliases: []string{FlagFormatShort}, Usage: UsageFormat, Value: FlagDefaultFormat},
				),
				Action: a.checkAction,
			},
			{
				Name:   CmdNameVersion,
				Usage:  UsageVersion,
				Flags:  []cli.Flag{&cli.StringFlag{Name: FlagFormat, Aliases: []string{FlagFormatShort}, Usage: UsageFormat, Value: FlagDefaultFormat}},
				Action: a.versionAction,
			},
		},
	}
}

// rendererFlags are shared by every command that builds a renderer.
func rendererFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: FlagBase, Aliases: []string{FlagBaseShort}, Usage: UsageBase},
		&cli.StringFlag{Name: FlagConfig, Aliases: []string{FlagConfigShort}, Usage: UsageConfig},
		&cli.StringFlag{Name: FlagFilter, Usage: UsageFilter},
		&cli.StringFlag{Name: FlagEncoding, Usage: UsageEncoding},
		&cli.IntFlag{Name: FlagMaxDepth, Usage: UsageMaxDepth},
		&cli.IntFlag{Name: FlagExcerpt, Usage: UsageExcerpt},
		&cli.BoolFlag{Name: FlagVerbose, Usage: UsageVerbose},
	}
}
