package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func (a *app) compileAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fail(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}

	r, err := a.newRenderer(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	tmpl, err := a.loadTemplate(ctx, r, cmd.Args().First())
	if err != nil {
		return asFailure(err, ErrMsgCompileFailed)
	}

	var out string
	if cmd.Bool(FlagInstructions) {
		prog, err := tmpl.Program()
		if err != nil {
			return asFailure(err, ErrMsgCompileFailed)
		}
		out = prog.Dump()
	} else {
		out, err = tmpl.GeneratedSource()
		if err != nil {
			return asFailure(err, ErrMsgCompileFailed)
		}
	}

	fmt.Fprint(a.stdout, out)
	return nil
}
