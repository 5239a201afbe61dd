package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/refine"
)

// clusterFlags — общие флаги cluster и cluster-edit.
type clusterFlags struct {
	typ      string
	function string
}

func (f *clusterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", refine.ClustererBinning, "Clusterer type: binning or knn")
	cmd.Flags().StringVar(&f.function, "function", "", "Keying or distance function (default: fingerprint for binning, levenshtein for knn)")
}

func (f *clusterFlags) options() refine.ClusterOptions {
	return refine.ClusterOptions{Type: f.typ, Function: f.function}
}

// NewClusterCmd создаёт команду вычисления кластеров.
func NewClusterCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var flags clusterFlags
	var output string

	cmd := &cobra.Command{
		Use:   "cluster PROJECT COLUMN",
		Short: "Compute clusters of similar values in a column",
		Long: `Compute clusters of similar values in a column.

Each cluster is printed as one line of tab-separated values, the most
frequent value first. With --json the counts are included.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			clusters, err := project.ComputeClusters(cmd.Context(), args[1], flags.options())
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(clusters)
				return nil
			}

			if output == "" || output == "-" {
				return refine.WriteClustersTSV(out.Writer(), clusters)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := refine.WriteClustersTSV(f, clusters); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}

			out.Success(fmt.Sprintf("%d clusters written to %s", len(clusters), output))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write clusters to this file (default: stdout)")

	return cmd
}

// NewClusterEditCmd создаёт команду слияния кластеров.
func NewClusterEditCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var flags clusterFlags
	var limit int

	cmd := &cobra.Command{
		Use:   "cluster-edit PROJECT COLUMN",
		Short: "Merge each cluster of similar values into its most frequent value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			result, err := project.ClusterEdit(cmd.Context(), args[1], flags.options(), limit)
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(result)
				return nil
			}

			rows := make([][]string, len(result.Edits))
			for i, e := range result.Edits {
				rows[i] = []string{e.To, strings.Join(e.From, " | "), strconv.Itoa(len(e.From))}
			}
			out.Table([]string{"TO", "FROM", "VALUES"}, rows)
			out.Success(fmt.Sprintf("Merged %d of %d clusters in %s", len(result.Edits), result.Clusters, args[1]))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Merge at most N clusters (0 for all)")

	return cmd
}
