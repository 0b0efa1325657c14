package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"calcbot/internal/calc"
	"calcbot/internal/pipeline"
	"calcbot/internal/rates"

	"github.com/spf13/cobra"
)

func calcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calc <expression...>",
		Short: "Calculate an expression, as the calculate command would",
		Example: `  calcbot calc "2*(3+4)"
  calcbot calc 100 usd to eur`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Rates load lazily on the first currency lookup.
			p := pipeline.New(calc.NewExprEngine(newRateCache(cfg, nil, nil)))
			out := p.Force(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			if out.Err != nil {
				return out.Err
			}
			return nil
		},
	}
}

func triageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage <message...>",
		Short: "Show how a chat message would be triaged and answered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p := pipeline.New(calc.NewExprEngine(newRateCache(cfg, nil, nil)))
			out := p.Evaluate(cmd.Context(), strings.Join(args, " "))
			return writeOutcome(cmd.OutOrStdout(), out)
		},
	}
}

func writeOutcome(w io.Writer, out pipeline.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "expression:\t%s\n", out.Expression)
	fmt.Fprintf(tw, "verdict:\t%s\n", out.Label())
	if out.Verdict.CurrencyConversion {
		fmt.Fprintf(tw, "currency:\tyes\n")
	}
	if out.Result != "" {
		fmt.Fprintf(tw, "result:\t%s\n", out.Result)
	}
	if out.Err != nil {
		fmt.Fprintf(tw, "error:\t%v\n", out.Err)
	}
	reply := out.Reply
	if reply == "" {
		reply = "(silent)"
	}
	fmt.Fprintf(tw, "reply:\t%s\n", reply)
	return tw.Flush()
}

func ratesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rates [code...]",
		Short: "Fetch the currency rates once and print them (per 1 USD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cache := newRateCache(cfg, nil, nil)
			if !cache.UpdateRates(cmd.Context()) {
				return errors.New("no rates could be fetched")
			}
			return writeRates(cmd.OutOrStdout(), cache.Snapshot(), args)
		},
	}
}

// writeRates prints the requested codes, or the whole table when none are
// given. Unknown codes are reported after the known ones.
func writeRates(w io.Writer, table *rates.Table, codes []string) error {
	if len(codes) == 0 {
		codes = table.Codes()
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var missing []string
	for _, code := range codes {
		r, ok := table.Rate(code)
		if !ok {
			missing = append(missing, strings.ToUpper(code))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(code), r.Round(8).String())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown currency: %s", strings.Join(missing, ", "))
	}
	return nil
}
