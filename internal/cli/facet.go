package cli

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/facet"
	"github.com/shaiso/Refinery/internal/refine"
)

// NewFacetCmd создаёт команду подсчёта значений колонок (text facets).
func NewFacetCmd(refineFn func() *refine.Refine, outputFn func() *Output) *cobra.Command {
	var expression string
	var top int

	cmd := &cobra.Command{
		Use:   "facet PROJECT COLUMN...",
		Short: "Count distinct values of columns",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			project, err := refine.ProjectFromRef(refineFn().Server(), args[0])
			if err != nil {
				return err
			}

			facets := make([]facet.Facet, 0, len(args)-1)
			for _, column := range args[1:] {
				f := facet.NewTextFacet(column)
				if expression != "" {
					f.Expression = expression
				}
				facets = append(facets, f)
			}

			resp, err := project.ComputeFacets(cmd.Context(), facets...)
			if err != nil {
				return err
			}
			if out.JSONMode() {
				out.JSON(resp)
				return nil
			}

			var rows [][]string
			for _, f := range resp.Facets {
				if f.Error != "" {
					out.Warn(fmt.Sprintf("Facet %s: %s", f.Name, f.Error))
					continue
				}
				for _, c := range topChoices(f, top) {
					rows = append(rows, []string{f.Name, cellString(c.Value), strconv.Itoa(c.Count)})
				}
				if f.BlankChoice != nil {
					rows = append(rows, []string{f.Name, "(blank)", strconv.Itoa(f.BlankChoice.Count)})
				}
			}

			out.Table([]string{"FACET", "VALUE", "COUNT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&expression, "expression", "", "GREL expression instead of \"value\"")
	cmd.Flags().IntVar(&top, "top", 0, "Show only the N most frequent values per facet")

	return cmd
}

// topChoices возвращает выборы по убыванию частоты; top > 0 ограничивает число.
func topChoices(f *facet.FacetResponse, top int) []facet.Choice {
	choices := make([]facet.Choice, 0, len(f.Choices))
	for _, c := range f.Choices {
		choices = append(choices, c)
	}

	slices.SortFunc(choices, func(a, b facet.Choice) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(cellString(a.Value), cellString(b.Value))
	})

	if top > 0 && len(choices) > top {
		choices = choices[:top]
	}
	return choices
}
