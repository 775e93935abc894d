package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itsatony/go-eepy"
	"github.com/urfave/cli/v3"
)

// checkResult is the JSON form of one checked template.
type checkResult struct {
	Template string `json:"template"`
	Valid    bool   `json:"valid"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
}

func (a *app) checkAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fail(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}
	format := cmd.String(FlagFormat)
	if format != OutputFormatText && format != OutputFormatJSON {
		return fail(ExitCodeUsageError, ErrMsgInvalidFormat, nil)
	}

	r, err := a.newRenderer(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	results := make([]checkResult, 0, cmd.NArg())
	failed := 0
	for _, target := range cmd.Args().Slice() {
		res := checkTemplate(ctx, r, target)
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	if format == OutputFormatJSON {
		jsonBytes, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(a.stdout, string(jsonBytes))
	} else {
		for _, res := range results {
			outputCheckText(res, a)
		}
	}

	if failed > 0 {
		return fail(ExitCodeValidationError, ErrMsgCheckFailed, fmt.Errorf("%d of %d template(s) invalid", failed, len(results)))
	}
	return nil
}

func checkTemplate(ctx context.Context, r *eepy.Renderer, target string) checkResult {
	res := checkResult{Template: target, Valid: true}
	if _, err := r.Template(ctx, target); err != nil {
		res.Valid = false
		res.Message = describe(err)
		var cerr *eepy.CompileError
		if errors.As(err, &cerr) {
			res.Line = cerr.Line
			res.Message = cerr.Message
			res.Excerpt = cerr.Excerpt
		}
	}
	return res
}

func outputCheckText(res checkResult, a *app) {
	if res.Valid {
		fmt.Fprintf(a.stdout, CheckTextOK+FmtNewline, res.Template)
		return
	}
	fmt.Fprintf(a.stdout, CheckTextFailed+FmtNewline, res.Template, res.Line, res.Message)
	if res.Excerpt != "" {
		fmt.Fprintf(a.stdout, CheckExcerpt+FmtNewline, res.Excerpt)
	}
}
