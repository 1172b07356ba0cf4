package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.runs.List(ctx, runsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tTYPE\tSTATUS\tPROCESSED\tCREATED\tUPDATED\tERRORS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				e.StartedAt.Format("2006-01-02 15:04:05"),
				e.RunType, e.Status,
				e.JobsProcessed, e.JobsCreated, e.JobsUpdated, len(e.Errors))
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
