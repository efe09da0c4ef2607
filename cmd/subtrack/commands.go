package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/subtrack/api"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/factory"
)

// =============================================================================
// PROJECTIONS
// =============================================================================

func newRenewalsCmd(flags *globalFlags) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "renewals <subscription-id>",
		Short: "List the renewal dates of one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			start := a.catalog.Today()
			if from != "" {
				if start, err = billing.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			end := start.AddMonthsClamped(12)
			if to != "" {
				if end, err = billing.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			sub, err := a.catalog.Get(cmd.Context(), billing.SubscriptionID(args[0]))
			if err != nil {
				return err
			}
			dates, err := a.catalog.Projector().Renewals(sub, billing.Window{Start: start, End: end})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %s) from %s to %s\n",
				sub.Name, sub.Price, sub.Cadence(a.cfg.MonthEndPolicy()), start, end)
			for _, d := range dates {
				fmt.Fprintf(out, "  %s  %s\n", d, d.Weekday().String()[:3])
			}
			total := billing.Totals{}
			for range dates {
				total.Add(sub.Price)
			}
			fmt.Fprintf(out, "%d renewals, total %s\n", len(dates), formatTotals(total))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Window start, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "Window end, YYYY-MM-DD (default one year after --from)")
	return cmd
}

func newCalendarCmd(flags *globalFlags) *cobra.Command {
	var year, month int

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the renewals of one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			today := a.catalog.Today()
			if year == 0 {
				year = today.Year()
			}
			if month == 0 {
				month = int(today.Month())
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be 1-12, got %d", month)
			}

			cal, err := a.catalog.Calendar(cmd.Context(), year, time.Month(month))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d\n", time.Month(month), year)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, r := range cal.Renewals() {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Date.Time.Format("Jan 02"), r.Subscription.Name, r.Subscription.Price)
			}
			tw.Flush()
			fmt.Fprintf(out, "Total:    %s\n", formatTotals(cal.Total))
			fmt.Fprintf(out, "Upcoming: %s\n", formatTotals(cal.Upcoming))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default current)")
	return cmd
}

func newSummaryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show counts and the monthly and yearly cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.catalog.Summary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subscriptions: %d active, %d cancelled, %d total\n", s.Active, s.Cancelled, s.Total)
			fmt.Fprintf(out, "Monthly: %s\n", formatTotals(s.Monthly))
			fmt.Fprintf(out, "Yearly:  %s\n", formatTotals(s.Yearly))

			if len(s.ByCategory) == 0 {
				return nil
			}
			fmt.Fprintln(out, "By category (monthly):")
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, g := range sortedCategories(s.ByCategory) {
				fmt.Fprintf(tw, "  %s\t%s\n", g, formatTotals(s.ByCategory[g]))
			}
			return tw.Flush()
		},
	}
}

func newRemindersCmd(flags *globalFlags) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List reminders due in the coming days",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			reminders, err := a.catalog.Reminders(cmd.Context(), billing.NextDays(a.catalog.Today(), days))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(reminders) == 0 {
				fmt.Fprintf(out, "No reminders in the next %d days\n", days)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, r := range reminders {
				fmt.Fprintf(tw, "%s\t%s\trenews %s\t%s\n", r.RemindOn, r.Subscription.Name, r.RenewsOn, r.Subscription.Price)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Days to look ahead")
	return cmd
}

// =============================================================================
// RENEWAL ADVANCEMENT
// =============================================================================

func newAdvanceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "advance",
		Short: "Move passed renewals forward and record their charges",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := api.NewRenewalScheduler(a.catalog, a.store, nil).RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checked %d, advanced %d, recorded %d charges (as of %s)\n",
				run.Checked, run.Advanced, run.Charges, run.AsOf)
			return nil
		},
	}
}

// =============================================================================
// DATA MANAGEMENT
// =============================================================================

func newExportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every subscription to an export file (stdout when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			subs, err := a.catalog.List(cmd.Context(), billing.Filter{}, billing.SortName)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(factory.Export(subs, time.Now())); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			if len(args) == 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d subscriptions to %s\n", len(subs), args[0])
			}
			return nil
		},
	}
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import subscriptions from an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading import file: %w", err)
			}
			subs, err := factory.ParseExport(data)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.catalog.Import(cmd.Context(), subs, replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d subscriptions\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Remove existing subscriptions first")
	return cmd
}

func newSeedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Replace everything with demo subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.catalog.Seed(cmd.Context(), factory.Samples(a.catalog.Today()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d subscriptions\n", n)
			return nil
		},
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

func formatTotals(t billing.Totals) string {
	amounts := t.Money()
	if len(amounts) == 0 {
		return "0"
	}
	parts := make([]string, len(amounts))
	for i, m := range amounts {
		parts[i] = m.String()
	}
	return strings.Join(parts, " + ")
}

func sortedCategories(m map[string]billing.Totals) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
