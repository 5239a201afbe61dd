package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/config"
	"github.com/shaiso/Refinery/internal/export"
	"github.com/shaiso/Refinery/internal/refine"
)

// legacyOptions — флаги корневой команды в старом стиле:
// refine --export --output=project.xls PROJECT.
type legacyOptions struct {
	output string
	list   bool
	export bool
	apply  string
}

// NewRootCmd создаёт корневую команду со всеми подкомандами.
func NewRootCmd(app *App) *cobra.Command {
	var configPath string
	var jsonOutput bool
	var legacy legacyOptions

	rootCmd := &cobra.Command{
		Use:   "refine [--help | OPTIONS] [PROJECT_ID_OR_URL]",
		Short: "Command line client for OpenRefine",
		Long: `Command line client for OpenRefine.

Examples:

  refine --list                                # projects, newest first
  refine --export 1234... > project.tsv
  refine --export --output=project.xls 1234...
  refine --apply trim.json 1234...`,
		Version:       app.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Init(configPath, jsonOutput)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacy(cmd, app, legacy, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/refinery/config.yaml)")
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.StringP("host", "H", "", "OpenRefine hostname")
	pf.StringP("port", "P", "", "OpenRefine port")
	pf.String("server", "", "OpenRefine URL, overrides --host and --port")
	pf.Duration("timeout", 0, "Request timeout")
	pf.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("metrics-file", "", "Write request metrics to this node-exporter textfile")
	pf.String("postgres-dsn", "", "PostgreSQL DSN for job history and table exports")
	pf.String("amqp-url", "", "AMQP URL for project events")

	// Флаги определены выше, ошибки привязки быть не может.
	_ = config.BindFlags(app.Viper, pf, map[string]string{
		config.KeyHost:        "host",
		config.KeyPort:        "port",
		config.KeyServer:      "server",
		config.KeyTimeout:     "timeout",
		config.KeyLogLevel:    "log-level",
		config.KeyLogFormat:   "log-format",
		config.KeyMetricsFile: "metrics-file",
		config.KeyPostgresDSN: "postgres-dsn",
		config.KeyAMQPURL:     "amqp-url",
	})

	f := rootCmd.Flags()
	f.StringVarP(&legacy.output, "output", "o", "", "Output filename; the extension selects the export format")
	f.BoolVarP(&legacy.list, "list", "l", false, "List projects")
	f.BoolVarP(&legacy.export, "export", "E", false, "Export project")
	f.StringVarP(&legacy.apply, "apply", "f", "", "Apply a JSON operations file to a project")

	refineFn := func() *refine.Refine { return app.Refine() }
	outputFn := func() *Output { return app.Out }

	rootCmd.AddCommand(
		NewListCmd(refineFn, outputFn),
		NewVersionCmd(app.Version, refineFn, outputFn),
		NewCreateCmd(refineFn, outputFn),
		NewDeleteCmd(refineFn, outputFn),
		NewExportCmd(refineFn, outputFn),
		NewApplyCmd(refineFn, outputFn),
		NewRowsCmd(refineFn, outputFn),
		NewRenameColumnCmd(refineFn, outputFn),
		NewFacetCmd(refineFn, outputFn),
		NewClusterCmd(refineFn, outputFn),
		NewClusterEditCmd(refineFn, outputFn),
		NewJobCmd(func() *App { return app }),
		NewEventsCmd(func() *App { return app }),
	)

	return rootCmd
}

// runLegacy выполняет действия флагов --list, --apply и --export.
// Без --list и без единственного аргумента печатается usage.
func runLegacy(cmd *cobra.Command, app *App, opts legacyOptions, args []string) error {
	ctx := cmd.Context()

	if !opts.list && len(args) != 1 {
		fmt.Fprintln(cmd.OutOrStdout(), "Usage:", cmd.UseLine())
		return nil
	}

	if opts.list {
		if err := listProjects(ctx, app.Refine(), app.Out); err != nil {
			return err
		}
	}

	if len(args) != 1 {
		return nil
	}

	project, err := refine.ProjectFromRef(app.Refine().Server(), args[0])
	if err != nil {
		return err
	}

	var failed bool
	if opts.apply != "" {
		ok, err := applyFile(ctx, project, opts.apply, app.Out)
		if err != nil {
			return err
		}
		failed = !ok
	}

	if opts.export {
		if err := exportProject(ctx, project, opts.output, "", app.Out); err != nil {
			return err
		}
	}

	if failed {
		return ErrReported
	}
	return nil
}

// listProjects печатает проекты в виде "<id>: <name>", новые первыми.
func listProjects(ctx context.Context, r *refine.Refine, out *Output) error {
	projects, err := r.SortedProjects(ctx)
	if err != nil {
		return err
	}
	if out.JSONMode() {
		out.JSON(projects)
		return nil
	}
	for _, p := range projects {
		fmt.Fprintf(out.Writer(), "%14s: %s\n", p.ID, p.Name)
	}
	return nil
}

// applyFile применяет файл операций. Ответ сервера, отличный от ok,
// печатается как "Failed to apply <file>: <code>"; тогда возвращается false.
func applyFile(ctx context.Context, project *refine.Project, path string, out *Output) (bool, error) {
	code, err := project.ApplyOperations(ctx, path, true)
	if err != nil {
		var serverErr *refine.ServerError
		if !errors.As(err, &serverErr) {
			return false, err
		}
		code = serverErr.Code
	}
	if code != "ok" {
		out.Warn(fmt.Sprintf("Failed to apply %s: %s", path, code))
		return false, nil
	}
	return true, nil
}

// exportProject пишет экспорт в файл output или в stdout. Формат берётся
// из format, иначе из расширения output, иначе tsv.
func exportProject(ctx context.Context, project *refine.Project, output, format string, out *Output) error {
	if output == "-" {
		output = ""
	}

	compressed := false
	if output != "" {
		var ext string
		ext, compressed = export.Format(output)
		if format == "" {
			format = ext
		}
	}
	if format == "" {
		format = export.DefaultFormat
	}

	rc, err := project.Export(ctx, format)
	if err != nil {
		return err
	}
	defer rc.Close()

	if output == "" {
		_, err = export.Copy(out.Writer(), rc, compressed)
		return err
	}
	_, err = export.WriteFile(output, rc)
	return err
}
