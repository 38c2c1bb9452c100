package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/habitat.report/internal/store"
)

func runsCmd() *cobra.Command {
	var individual string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), individual)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&individual, "individual", "", "only runs of this individual")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the per-fix assignments of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := st.ListAssignments(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			return writeAssignments(cmd.OutOrStdout(), run, rows)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.DeleteRun(cmd.Context(), args[0])
		},
	})
	return cmd
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.GetDatabasePath()
	if path == "" {
		return nil, errNoDatabase
	}
	return store.Open(path)
}

func writeRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "run\tindividual\tfixes\trepetitions\tseed\tsigma\tbeta\tcreated")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f\t%.4f\t%s\n",
			r.ID, r.Individual, r.Fixes, r.Repetitions, r.Seed, r.Sigma, r.Beta, r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func writeAssignments(w io.Writer, run *store.Run, rows []store.Row) error {
	fmt.Fprintf(w, "run %s: %s, %d repetitions, ordering %s\n", run.ID, run.Individual, run.Repetitions, run.Ordering)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "fix\ttime\traw\tpredicted\tmost_likely\tshare")
	for _, r := range rows {
		majority, share := string(r.Majority), ""
		if r.Degenerate {
			majority = "(degenerate)"
		} else {
			share = fmt.Sprintf("%.2f", r.Distribution[r.Majority])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.FixIndex, r.Time.Format(time.RFC3339), r.Raw, r.Predicted, majority, share)
	}
	return tw.Flush()
}
