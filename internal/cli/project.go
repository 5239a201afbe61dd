package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/refine"
)

// NewListCmd создаёт команду списка проектов.
func NewListCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently modified first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := refineFn()
			out := outputFn()

			if short {
				return listProjects(cmd.Context(), r, out)
			}

			projects, err := r.SortedProjects(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "MODIFIED", "ROWS"}
			rows := make([][]string, len(projects))
			for i, p := range projects {
				rows[i] = []string{p.ID, p.Name, p.Modified, strconv.Itoa(p.RowCount)}
			}

			out.Print(headers, rows, projects)
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print \"ID: name\" lines like --list")

	return cmd
}

// NewVersionCmd создаёт команду версии клиента и сервера.
func NewVersionCmd(version string, refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := refineFn()
			out := outputFn()

			v, err := r.Server().Version(cmd.Context())
			if err != nil {
				return err
			}

			out.Print(
				[]string{"CLIENT", "SERVER", "REVISION", "URL"},
				[][]string{{version, v.FullVersion, v.Revision, r.Server().URL()}},
				map[string]any{"client": version, "server": v, "url": r.Server().URL()},
			)
			return nil
		},
	}
}

// NewCreateCmd создаёт команду импорта нового проекта.
func NewCreateCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	opts := refine.DefaultNewProjectOptions()
	var noGuessTypes, noQuotes, noBlankRows, noBlankNulls bool

	cmd := &cobra.Command{
		Use:   "create FILE_OR_URL",
		Short: "Create a project from a local file or a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := refineFn()
			out := outputFn()

			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				opts.URL = args[0]
			} else {
				opts.File = args[0]
			}
			opts.GuessCellValueTypes = !noGuessTypes
			opts.ProcessQuotes = !noQuotes
			opts.StoreBlankRows = !noBlankRows
			opts.StoreBlankCellsAsNulls = !noBlankNulls

			project, err := r.NewProject(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Project created: %s", project.ID))
			out.Print(
				[]string{"ID", "URL", "COLUMNS"},
				[][]string{{project.ID, project.URL(), strings.Join(project.Columns, ", ")}},
				map[string]any{"id": project.ID, "url": project.URL(), "columns": project.Columns},
			)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "Project name (default: file name without extension)")
	f.StringVar(&opts.Format, "format", opts.Format, "Importer format")
	f.StringVar(&opts.Encoding, "encoding", "", "File encoding")
	f.StringVar(&opts.Separator, "separator", opts.Separator, "Column separator")
	f.IntVar(&opts.HeaderLines, "header-lines", opts.HeaderLines, "Number of header lines")
	f.IntVar(&opts.IgnoreLines, "ignore-lines", opts.IgnoreLines, "Lines to ignore at the beginning")
	f.IntVar(&opts.SkipDataLines, "skip-data-lines", opts.SkipDataLines, "Data lines to skip after the header")
	f.IntVar(&opts.Limit, "limit", opts.Limit, "Maximum rows to import (-1 for all)")
	f.BoolVar(&noGuessTypes, "no-guess-types", false, "Keep all cells as text")
	f.BoolVar(&noQuotes, "no-quotes", false, "Do not process quotes")
	f.BoolVar(&noBlankRows, "no-blank-rows", false, "Drop blank rows")
	f.BoolVar(&noBlankNulls, "no-blank-nulls", false, "Store blank cells as empty strings")

	return cmd
}

// NewDeleteCmd создаёт команду удаления проекта.
func NewDeleteCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROJECT",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			ok, err := project.Delete(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("project %s was not deleted", project.ID)
			}

			out.Success(fmt.Sprintf("Project deleted: %s", project.ID))
			return nil
		},
	}
}

// NewExportCmd создаёт команду экспорта проекта.
func NewExportCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "export PROJECT",
		Short: "Export project rows to stdout or a file",
		Long: `Export project rows to stdout or a file.

The format is taken from --format, then from the --output extension,
and defaults to tsv. A .gz suffix gzip-compresses the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}
			return exportProject(cmd.Context(), project, output, format, outputFn())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "Export format: tsv, csv, xls, xlsx, html")

	return cmd
}

// NewApplyCmd создаёт команду применения файлов операций.
func NewApplyCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "apply PROJECT FILE...",
		Short: "Apply JSON operation files to a project",
		Long: `Apply JSON operation files to a project, in order.

Files are operation histories extracted from OpenRefine; // and /* */
comments are allowed. A file the server rejects is reported as
"Failed to apply FILE: CODE" and the remaining files are skipped.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			for _, path := range args[1:] {
				ok, err := applyFile(cmd.Context(), project, path, out)
				if err != nil {
					return err
				}
				if !ok {
					return ErrReported
				}
				out.Success(fmt.Sprintf("Applied %s", path))
			}
			return nil
		},
	}
}

// NewRowsCmd создаёт команду просмотра строк.
func NewRowsCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var opts refine.RowsOptions
	var sortBy []string

	cmd := &cobra.Command{
		Use:   "rows PROJECT",
		Short: "Show project rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refineFn().OpenProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, column := range sortBy {
				if _, ok := project.ColumnOrder[column]; !ok {
					return fmt.Errorf("%w: %s", refine.ErrUnknownColumn, column)
				}
			}
			if len(sortBy) > 0 {
				opts.SortBy = sortBy
			}

			resp, err := project.GetRows(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := append([]string{"#"}, project.Columns...)
			rows := make([][]string, len(resp.Rows))
			for i, row := range resp.Rows {
				line := make([]string, 0, len(headers))
				line = append(line, strconv.Itoa(row.Index+1))
				for _, column := range project.Columns {
					line = append(line, cellString(row.Get(column)))
				}
				rows[i] = line
			}

			out.Print(headers, rows, resp)
			if !out.JSONMode() {
				out.Success(fmt.Sprintf("%d of %d rows (%d filtered)", len(resp.Rows), resp.Total, resp.Filtered))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Start, "start", 0, "First row")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "Number of rows")
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "Sort by columns (text, case-insensitive)")

	return cmd
}

// NewRenameColumnCmd создаёт команду переименования колонки.
func NewRenameColumnCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "rename-column PROJECT OLD NEW",
		Short: "Rename a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			if _, err := project.RenameColumn(cmd.Context(), args[1], args[2]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Column renamed: %s -> %s", args[1], args[2]))
			return nil
		},
	}
}

// cellString форматирует значение ячейки для таблицы.
func cellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
