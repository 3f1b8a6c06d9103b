package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/pricing"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewPricingCommand() *cobra.Command {
	var tier string
	var billingDay int

	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Compare metered cost with a subscription",
		Long: `Estimate what this billing cycle's usage would cost at metered API rates and compare it
with a flat subscription. Defaults come from the billing section of the config file.`,
		Example: `  # Using the configured tier and billing day
  agent-index pricing

  # Pro plan renewing on the 6th
  agent-index pricing --subscription pro --billing-day 6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("subscription") {
				tier = cfg.Billing.Subscription
			}
			if !cmd.Flags().Changed("billing-day") {
				billingDay = cfg.Billing.BillingDay
			}
			return runPricing(cmd.Context(), cmd.OutOrStdout(), tier, billingDay)
		},
	}

	cmd.Flags().StringVar(&tier, "subscription", "", "Subscription tier (free, pro, max5x, max20x)")
	cmd.Flags().IntVar(&billingDay, "billing-day", 0, "Day of month the subscription renews (1-31)")

	return cmd
}

func runPricing(ctx context.Context, out io.Writer, tier string, billingDay int) error {
	return withReporter(func(r *report.Reporter) error {
		rep, err := r.Pricing(ctx, tier, billingDay)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, rep)
		}
		printPricing(out, rep)
		return nil
	})
}

func printPricing(w io.Writer, rep *models.PricingReport) {
	printTitle(w, fmt.Sprintf("Billing cycle %s to %s", rep.Cycle.Start.Format("2006-01-02"), rep.Cycle.End.Format("2006-01-02")))
	printField(w, "Day", fmt.Sprintf("%d of %d", rep.Cycle.DaysElapsed, rep.Cycle.TotalDays))
	printField(w, "Tokens", usageSummary(rep.Usage))
	printField(w, "Metered cost so far", pricing.FormatCost(rep.MeteredCost))
	printField(w, "Projected metered cost", pricing.FormatCost(rep.ProjectedMeteredCost))
	printField(w, "Subscription ("+rep.Tier+")", pricing.FormatCost(rep.SubscriptionPrice))
	printField(w, "Prorated subscription", pricing.FormatCost(rep.ProratedSubscription))
	printField(w, "Break-even output tokens", tokens(rep.BreakEvenTokens))
	fmt.Fprintln(w)

	if rep.SubscriptionCheaper {
		fmt.Fprintln(w, goodStyle.Render(fmt.Sprintf("The subscription saves about %s this cycle.", pricing.FormatCost(rep.Savings))))
	} else {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Metered usage would be about %s cheaper this cycle.", pricing.FormatCost(rep.Savings))))
	}

	if len(rep.ByModel) > 0 {
		fmt.Fprintln(w)
		tw := newTable(w, "MODEL", "MESSAGES", "TOKENS", "COST")
		for _, m := range rep.ByModel {
			row(tw, orDash(m.Model), m.Messages, tokens(m.Usage.Total()), pricing.FormatCost(m.Cost))
		}
		tw.Flush()
	}
}
