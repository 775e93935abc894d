package main

import (
	"context"
	"os"
)

func main() {
	exitCode := run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
