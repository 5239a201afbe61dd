// refine — инструмент командной строки для сервера OpenRefine.
//
// Использование:
//
//	refine [--help | OPTIONS] [PROJECT_ID_OR_URL]
//	refine [--json] <command> [flags]
//
// Примеры:
//
//	refine --list
//	refine --export --output=project.xls 1234...
//	refine --apply trim.json 1234...
//	refine job run authors.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Refinery/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.NewApp(version, os.Stdout, os.Stderr)
	rootCmd := cli.NewRootCmd(app)

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := app.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", closeErr)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrReported):
		return 1
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}
