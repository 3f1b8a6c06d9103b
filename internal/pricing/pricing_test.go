package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasperwreed/agent-index/internal/models"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	assert.NotEmpty(t, table.Models)
	assert.Equal(t, []string{"free", "pro", "max5x", "max20x"}, table.Tiers())
}

func TestRate(t *testing.T) {
	table := Default()

	tests := []struct {
		model string
		want  string
	}{
		{model: "claude-opus-4-5-20251101", want: "claude-opus-4-5-20251101"},
		{model: "claude-3-haiku-20250101", want: "claude-3-haiku-20240307"},
		{model: "claude-3-5-sonnet-20240620", want: "claude-3-5-sonnet-20241022"},
		{model: "anthropic/opus-4.5", want: "claude-opus-4-5-20251101"},
		{model: "Claude-Haiku-Next", want: "claude-3-haiku-20240307"},
		{model: "gpt-4o", want: "unknown"},
		{model: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Rate(tt.model).Name)
		})
	}
}

func TestCost(t *testing.T) {
	table := Default()

	usage := models.TokenUsage{
		InputTokens:         1_000_000,
		OutputTokens:        1_000_000,
		CacheCreationTokens: 1_000_000,
		CacheReadTokens:     1_000_000,
	}

	assert.InDelta(t, 5+25+6.25+0.5, table.Cost("claude-opus-4-5-20251101", usage), 1e-9)
	// No cache rates configured for Opus 4.
	assert.InDelta(t, 15+75, table.Cost("claude-opus-4-20250514", usage), 1e-9)
	assert.InDelta(t, 3+15, table.Cost("mystery-model", usage), 1e-9)
	assert.Zero(t, table.Cost("claude-opus-4-20250514", models.TokenUsage{}))
}

func TestSubscriptionPrice(t *testing.T) {
	table := Default()

	for tier, want := range map[string]float64{"Pro": 20, "max-5x": 100, "Max 20x": 200, "free": 0} {
		price, err := table.SubscriptionPrice(tier)
		require.NoError(t, err, tier)
		assert.Equal(t, want, price, tier)
	}

	_, err := table.SubscriptionPrice("enterprise")
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
}

func TestBreakEvenTokens(t *testing.T) {
	table := Default()

	assert.Equal(t, int64(4_000_000), table.BreakEvenTokens(100))
	assert.Equal(t, int64(0), table.BreakEvenTokens(0))
}

func TestCycle(t *testing.T) {
	loc := time.UTC
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	tests := []struct {
		name       string
		billingDay int
		now        time.Time
		start, end time.Time
		elapsed    int
		total      int
	}{
		{
			name:       "after anchor",
			billingDay: 6,
			now:        time.Date(2025, 6, 10, 15, 0, 0, 0, loc),
			start:      day(2025, 6, 6),
			end:        day(2025, 7, 6),
			elapsed:    5,
			total:      30,
		},
		{
			name:       "on anchor day",
			billingDay: 6,
			now:        time.Date(2025, 6, 6, 0, 30, 0, 0, loc),
			start:      day(2025, 6, 6),
			end:        day(2025, 7, 6),
			elapsed:    1,
			total:      30,
		},
		{
			name:       "before anchor wraps to previous month",
			billingDay: 20,
			now:        time.Date(2025, 1, 3, 8, 0, 0, 0, loc),
			start:      day(2024, 12, 20),
			end:        day(2025, 1, 20),
			elapsed:    15,
			total:      31,
		},
		{
			name:       "clamped to short month",
			billingDay: 31,
			now:        time.Date(2025, 2, 15, 12, 0, 0, 0, loc),
			start:      day(2025, 1, 31),
			end:        day(2025, 2, 28),
			elapsed:    16,
			total:      28,
		},
		{
			name:       "clamped anchor reached",
			billingDay: 30,
			now:        time.Date(2024, 2, 29, 12, 0, 0, 0, loc),
			start:      day(2024, 2, 29),
			end:        day(2024, 3, 30),
			elapsed:    1,
			total:      30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle, err := Cycle(tt.billingDay, tt.now)
			require.NoError(t, err)
			assert.True(t, tt.start.Equal(cycle.Start), "start = %s", cycle.Start)
			assert.True(t, tt.end.Equal(cycle.End), "end = %s", cycle.End)
			assert.Equal(t, tt.elapsed, cycle.DaysElapsed)
			assert.Equal(t, tt.total, cycle.TotalDays)
		})
	}

	for _, bad := range []int{0, 32, -1} {
		_, err := Cycle(bad, time.Now())
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	}
}

func TestProjectCycleCost(t *testing.T) {
	assert.InDelta(t, 30.0, ProjectCycleCost(10, 10, 30), 1e-9)
	assert.Zero(t, ProjectCycleCost(10, 0, 30))
}

func TestParseRejectsBadTables(t *testing.T) {
	_, err := Parse([]byte("models:\n  - name: x\n    input_per_mtok: -1\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("families:\n  - match: [opus]\n    model: missing\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("models: [\n"))
	assert.Error(t, err)
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.0012", FormatCost(0.00123))
	assert.Equal(t, "$0.123", FormatCost(0.1234))
	assert.Equal(t, "$12.35", FormatCost(12.3456))
}
