package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"calcbot/internal/domain"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent triage decisions and the last rate refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			if st == nil {
				return errors.New("store is disabled (store.enabled: false)")
			}
			defer st.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			recs, err := st.RecentTriage(ctx, limit)
			if err != nil {
				return fmt.Errorf("recent triage: %w", err)
			}
			if err := writeTriageRecords(w, recs); err != nil {
				return err
			}

			counts, err := st.VerdictCounts(ctx, time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("verdict counts: %w", err)
			}
			fmt.Fprintf(w, "\nVerdicts in the last %s:\n", since)
			if err := writeCounts(w, counts); err != nil {
				return err
			}

			last, err := st.LastRefresh(ctx)
			if err != nil {
				return fmt.Errorf("last refresh: %w", err)
			}
			if last == nil {
				fmt.Fprintln(w, "\nNo rate refresh recorded yet.")
				return nil
			}
			fmt.Fprintf(w, "\nLast rate refresh: %s, installed=%t, entries=%d, fiat=%t, crypto=%t, took %s\n",
				last.StartedAt.Local().Format(time.DateTime), last.Installed, last.Entries,
				last.FiatOK, last.CryptoOK, last.Duration)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of triage decisions to show")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for the verdict summary")
	return cmd
}

func writeTriageRecords(w io.Writer, recs []domain.TriageRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHANNEL\tVERDICT\tREPLIED\tCONTENT\tRESULT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Channel, r.Verdict, r.Replied,
			truncate(r.Content, 40), r.Result)
	}
	return tw.Flush()
}

func writeCounts(w io.Writer, counts map[string]int) error {
	verdicts := make([]string, 0, len(counts))
	for v := range counts {
		verdicts = append(verdicts, v)
	}
	sort.Strings(verdicts)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, v := range verdicts {
		fmt.Fprintf(tw, "  %s\t%d\n", v, counts[v])
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
