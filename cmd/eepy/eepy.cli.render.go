package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func (a *app) renderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fail(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}

	data, err := loadData(cmd.String(FlagData), cmd.String(FlagDataFile))
	if err != nil {
		return fail(ExitCodeInputError, ErrMsgInvalidData, err)
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

	result, err := tmpl.Render(ctx, data)
	if err != nil {
		return fail(ExitCodeError, ErrMsgRenderFailed, err)
	}

	output := cmd.String(FlagOutput)
	if output == FlagDefaultOutput && isTerminal(a.stdout) && !strings.HasSuffix(result, FmtNewline) {
		result += FmtNewline
	}
	if err := writeOutput(output, []byte(result), a.stdout); err != nil {
		return fail(ExitCodeError, ErrMsgWriteOutputFailed, err)
	}
	return nil
}

// asFailure keeps an existing exit code. Missing files are input errors; anything
// else is a general failure.
func asFailure(err error, msg string) error {
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fail(ExitCodeInputError, ErrMsgReadFileFailed, err)
	}
	return fail(ExitCodeError, msg, err)
}

// loadData decodes template variables. YAML is a superset of JSON, so either
// form is accepted. The file wins over the inline string.
func loadData(inline, filePath string) (map[string]any, error) {
	var raw []byte
	switch {
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		raw = data
	case inline != "":
		raw = []byte(inline)
	default:
		return make(map[string]any), nil
	}

	result := make(map[string]any)
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// writeOutput writes content to a file or stdout
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == FlagDefaultOutput {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, FilePermissions)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
