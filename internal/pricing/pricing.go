// Package pricing converts token usage into metered cost and models flat
// subscription billing cycles. Rates are data: a Table is loaded from YAML
// and injected wherever costs are computed.
package pricing

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jasperwreed/agent-index/internal/models"
)

//go:embed default_pricing.yaml
var defaultPricingYAML []byte

const perMillion = 1_000_000.0

// ModelRate is the metered price of one model in USD per million tokens.
// Cache rates are optional; cache tokens are free when a rate is absent.
type ModelRate struct {
	Name              string   `yaml:"name" json:"name"`
	DisplayName       string   `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	InputPerMTok      float64  `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok     float64  `yaml:"output_per_mtok" json:"output_per_mtok"`
	CacheWritePerMTok *float64 `yaml:"cache_write_per_mtok,omitempty" json:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `yaml:"cache_read_per_mtok,omitempty" json:"cache_read_per_mtok,omitempty"`
}

// Family maps any model name containing one of Match to the rate of Model.
type Family struct {
	Match []string `yaml:"match" json:"match"`
	Model string   `yaml:"model" json:"model"`
}

// Table holds model rates and subscription tiers.
type Table struct {
	ReferenceModel string             `yaml:"reference_model,omitempty" json:"reference_model,omitempty" jsonschema:"description=Model whose output rate is used for break-even token counts"`
	Models         []ModelRate        `yaml:"models" json:"models"`
	Families       []Family           `yaml:"families,omitempty" json:"families,omitempty"`
	Default        ModelRate          `yaml:"default" json:"default"`
	Subscriptions  map[string]float64 `yaml:"subscriptions" json:"subscriptions"`
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultPricingYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded pricing table is invalid: %v", err))
	}
	return t
}

// Parse decodes and validates a YAML pricing table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse pricing table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that rates are non-negative and family targets exist.
func (t *Table) Validate() error {
	check := func(r ModelRate) error {
		if r.InputPerMTok < 0 || r.OutputPerMTok < 0 {
			return fmt.Errorf("pricing for %q has a negative rate", r.Name)
		}
		if (r.CacheWritePerMTok != nil && *r.CacheWritePerMTok < 0) || (r.CacheReadPerMTok != nil && *r.CacheReadPerMTok < 0) {
			return fmt.Errorf("pricing for %q has a negative cache rate", r.Name)
		}
		return nil
	}

	for _, r := range t.Models {
		if r.Name == "" {
			return fmt.Errorf("pricing table has a model without a name")
		}
		if err := check(r); err != nil {
			return err
		}
	}
	if err := check(t.Default); err != nil {
		return err
	}
	for _, f := range t.Families {
		if _, ok := t.lookup(f.Model); !ok {
			return fmt.Errorf("pricing family %v refers to unknown model %q", f.Match, f.Model)
		}
	}
	for tier, price := range t.Subscriptions {
		if price < 0 {
			return fmt.Errorf("subscription %q has a negative price", tier)
		}
	}
	return nil
}

func (t *Table) lookup(name string) (ModelRate, bool) {
	for _, r := range t.Models {
		if r.Name == name {
			return r, true
		}
	}
	return ModelRate{}, false
}

// Rate resolves the rate for a model: exact name, then the first three
// dash-separated segments, then family substrings, then the default.
func (t *Table) Rate(model string) ModelRate {
	if model == "" {
		return t.Default
	}
	if r, ok := t.lookup(model); ok {
		return r
	}

	lower := strings.ToLower(model)
	prefix := firstSegments(lower, 3)
	for _, r := range t.Models {
		if firstSegments(strings.ToLower(r.Name), 3) == prefix {
			return r
		}
	}

	for _, f := range t.Families {
		for _, m := range f.Match {
			if strings.Contains(lower, m) {
				if r, ok := t.lookup(f.Model); ok {
					return r
				}
			}
		}
	}
	return t.Default
}

func firstSegments(s string, n int) string {
	parts := strings.SplitN(s, "-", n+1)
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, "-")
}

// Cost is the metered cost of usage billed at the model's rate.
func (t *Table) Cost(model string, u models.TokenUsage) float64 {
	r := t.Rate(model)
	cost := float64(u.InputTokens)/perMillion*r.InputPerMTok +
		float64(u.OutputTokens)/perMillion*r.OutputPerMTok
	if r.CacheWritePerMTok != nil {
		cost += float64(u.CacheCreationTokens) / perMillion * *r.CacheWritePerMTok
	}
	if r.CacheReadPerMTok != nil {
		cost += float64(u.CacheReadTokens) / perMillion * *r.CacheReadPerMTok
	}
	return cost
}

// NormalizeTier lowercases a tier name and strips dashes and spaces, so
// "Max 5x" and "max-5x" both become "max5x".
func NormalizeTier(tier string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(tier)))
}

// SubscriptionPrice returns the monthly price of a tier.
func (t *Table) SubscriptionPrice(tier string) (float64, error) {
	price, ok := t.Subscriptions[NormalizeTier(tier)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown subscription tier %q (known: %s)",
			models.ErrInvalidQuery, tier, strings.Join(t.Tiers(), ", "))
	}
	return price, nil
}

// Tiers lists the known tiers by ascending price.
func (t *Table) Tiers() []string {
	tiers := make([]string, 0, len(t.Subscriptions))
	for tier := range t.Subscriptions {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool {
		pi, pj := t.Subscriptions[tiers[i]], t.Subscriptions[tiers[j]]
		if pi != pj {
			return pi < pj
		}
		return tiers[i] < tiers[j]
	})
	return tiers
}

// BreakEvenTokens is the number of output tokens at the reference model's
// rate that would cost as much as price.
func (t *Table) BreakEvenTokens(price float64) int64 {
	rate := t.Rate(t.ReferenceModel).OutputPerMTok
	if rate <= 0 {
		return 0
	}
	return int64(math.Round(price / rate * perMillion))
}

// Cycle returns the billing cycle containing now for a subscription renewing
// on billingDay. A day past the end of a month renews on that month's last
// day. DaysElapsed counts the current day.
func Cycle(billingDay int, now time.Time) (models.BillingCycle, error) {
	if billingDay < 1 || billingDay > 31 {
		return models.BillingCycle{}, fmt.Errorf("%w: billing day %d is outside 1..31", models.ErrInvalidQuery, billingDay)
	}

	loc := now.Location()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, loc)

	var start, end time.Time
	if thisMonth := anchor(year, month, billingDay, loc); !today.Before(thisMonth) {
		start = thisMonth
		end = anchor(year, month+1, billingDay, loc)
	} else {
		start = anchor(year, month-1, billingDay, loc)
		end = thisMonth
	}

	total := daysBetween(start, end)
	elapsed := daysBetween(start, today) + 1
	if elapsed > total {
		elapsed = total
	}
	return models.BillingCycle{
		Start:       start,
		End:         end,
		DaysElapsed: elapsed,
		TotalDays:   total,
	}, nil
}

// anchor is midnight of day in the given month, clamped to the month's last day.
// month may be out of range; time.Date normalizes it.
func anchor(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days, rounding away DST shifts.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// ProjectCycleCost extrapolates the cost so far across the whole cycle.
func ProjectCycleCost(current float64, elapsed, total int) float64 {
	if elapsed <= 0 {
		return 0
	}
	return current / float64(elapsed) * float64(total)
}

// FormatCost renders a dollar amount with more precision for small values.
func FormatCost(cost float64) string {
	switch {
	case cost < 0.01:
		return fmt.Sprintf("$%.4f", cost)
	case cost < 1:
		return fmt.Sprintf("$%.3f", cost)
	default:
		return fmt.Sprintf("$%.2f", cost)
	}
}
