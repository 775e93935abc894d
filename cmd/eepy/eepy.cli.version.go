package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/itsatony/go-eepy"
	"github.com/urfave/cli/v3"
)

// versionOutput represents JSON output for version
type versionOutput struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

func (a *app) versionAction(ctx context.Context, cmd *cli.Command) error {
	switch cmd.String(FlagFormat) {
	case OutputFormatText:
		fmt.Fprintf(a.stdout, VersionTextTemplate+FmtNewline, eepy.Version, runtime.Version())
	case OutputFormatJSON:
		jsonBytes, _ := json.MarshalIndent(versionOutput{Version: eepy.Version, GoVersion: runtime.Version()}, "", "  ")
		fmt.Fprintln(a.stdout, string(jsonBytes))
	default:
		return fail(ExitCodeUsageError, ErrMsgInvalidFormat, nil)
	}
	return nil
}
