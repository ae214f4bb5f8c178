package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/usagepulse/internal/analysis"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the KPI cards for the selected rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kpis, err := a.analyzer.KPIs(cmd.Context(), a.selection(cmd))
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				return a.writeJSON(cmd.OutOrStdout(), kpis)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\nRows: %d of %d\n\n",
				a.analyzer.Source(), kpis.FilteredRows, kpis.TotalRows)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Metric", "Value", "Unit"})
			table.SetAutoFormatHeaders(false)
			table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
			for _, m := range kpis.Metrics {
				table.Append([]string{m.Label, m.Display, m.Unit})
			}
			table.Render()
			return nil
		},
	}
}

func newTopCmd(a *app) *cobra.Command {
	var (
		group string
		value string
		n     int
		asc   bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Rank groups by the mean of a numeric column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ranked []query.GroupValue
			err := a.analyzer.Evaluate(cmd.Context(), "top", a.selection(cmd), func(v *query.View) error {
				var err error
				ranked, err = query.TopN(v, group, value, n, !asc)
				return err
			})
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				return a.writeJSON(cmd.OutOrStdout(), ranked)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", group, "Mean " + value, "Rows"})
			table.SetAutoFormatHeaders(false)
			table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
			for i, g := range ranked {
				table.Append([]string{strconv.Itoa(i + 1), g.Group, g.Value.Format(1), strconv.Itoa(g.Count)})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", dataset.DeviceModel, "Categorical column to group by")
	cmd.Flags().StringVar(&value, "value", dataset.BatteryDrain, "Numeric column to average")
	cmd.Flags().IntVarP(&n, "n", "n", analysis.TopDevices, "Number of groups to show")
	cmd.Flags().BoolVar(&asc, "asc", false, "Rank smallest mean first")
	return cmd
}

func newCorrelationCmd(a *app) *cobra.Command {
	var columns []string

	cmd := &cobra.Command{
		Use:   "correlation",
		Short: "Print the Pearson correlation matrix of numeric columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(columns) == 0 {
				columns = analysis.CorrelationColumns
			}

			var m *query.Matrix
			err := a.analyzer.Evaluate(cmd.Context(), "correlation", a.selection(cmd), func(v *query.View) error {
				var err error
				m, err = query.CorrelationMatrix(v, columns)
				return err
			})
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				return a.writeJSON(cmd.OutOrStdout(), m)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader(append([]string{""}, m.Columns...))
			table.SetAutoFormatHeaders(false)
			for i, name := range m.Columns {
				row := []string{name}
				for j := range m.Columns {
					row = append(row, m.At(i, j).Format(2))
				}
				table.Append(row)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "column", nil, "Columns of the matrix (default: every numeric column)")
	return cmd
}

func newDistributionCmd(a *app) *cobra.Command {
	var column string

	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Count rows per category of a column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var counts []query.CategoryCount
			err := a.analyzer.Evaluate(cmd.Context(), "distribution", a.selection(cmd), func(v *query.View) error {
				var err error
				counts, err = query.DistributionCounts(v, column)
				return err
			})
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				return a.writeJSON(cmd.OutOrStdout(), counts)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{column, "Rows", "Share"})
			table.SetAutoFormatHeaders(false)
			table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
			for _, c := range counts {
				table.Append([]string{c.Category, strconv.Itoa(c.Count), strconv.FormatFloat(c.Share*100, 'f', 1, 64) + "%"})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&column, "column", dataset.BehaviorClass, "Column to count")
	return cmd
}
