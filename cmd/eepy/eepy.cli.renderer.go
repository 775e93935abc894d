package main

import (
	"context"
	"io"

	"github.com/itsatony/go-eepy"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newRenderer builds a renderer from the optional config file, then applies
// command-line flags on top of it.
func (a *app) newRenderer(cmd *cli.Command) (*eepy.Renderer, error) {
	var opts []eepy.Option

	if path := cmd.String(FlagConfig); path != "" {
		cfg, err := eepy.LoadConfig(path)
		if err != nil {
			return nil, fail(ExitCodeInputError, ErrMsgConfigFailed, err)
		}
		cfgOpts, err := cfg.Options()
		if err != nil {
			return nil, fail(ExitCodeUsageError, ErrMsgConfigFailed, err)
		}
		opts = append(opts, cfgOpts...)
	}

	if base := cmd.String(FlagBase); base != "" {
		opts = append(opts, eepy.WithBase(base))
	}
	if name := cmd.String(FlagFilter); name != "" {
		filter, err := eepy.FilterByName(name)
		if err != nil {
			return nil, fail(ExitCodeUsageError, ErrMsgConfigFailed, err)
		}
		opts = append(opts, eepy.WithFilter(filter))
	}
	if enc := cmd.String(FlagEncoding); enc != "" {
		opts = append(opts, eepy.WithEncoding(enc))
	}
	if depth := cmd.Int(FlagMaxDepth); depth > 0 {
		opts = append(opts, eepy.WithMaxDepth(depth))
	}
	if cmd.IsSet(FlagExcerpt) {
		opts = append(opts, eepy.WithExcerptLines(cmd.Int(FlagExcerpt)))
	}
	if cmd.Bool(FlagVerbose) {
		opts = append(opts, eepy.WithLogger(newLogger(a.stderr)))
	}

	r, err := eepy.New(opts...)
	if err != nil {
		return nil, fail(ExitCodeUsageError, ErrMsgConfigFailed, err)
	}
	return r, nil
}

// newLogger writes human-readable debug logs to w.
func newLogger(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return zap.New(core)
}

// loadTemplate returns the compiled template named by target. Files resolve
// against the renderer base and go through its caches; "-" reads stdin.
func (a *app) loadTemplate(ctx context.Context, r *eepy.Renderer, target string) (*eepy.Template, error) {
	if target != InputSourceStdin {
		return r.Template(ctx, target)
	}
	source, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, fail(ExitCodeInputError, ErrMsgReadFileFailed, err)
	}
	return r.Parse(string(source))
}
