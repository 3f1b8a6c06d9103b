package models

import (
	"time"
)

// SearchResult is a single full-text match over message content.
type SearchResult struct {
	SessionID string    `json:"session_id"`
	Project   string    `json:"project"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// ModelUsage is token usage and derived cost for one model.
type ModelUsage struct {
	Model    string     `json:"model"`
	Messages int        `json:"messages"`
	Usage    TokenUsage `json:"usage"`
	Cost     float64    `json:"cost"`
}

// DayUsage is token usage bucketed by local calendar day (YYYY-MM-DD).
type DayUsage struct {
	Day      string     `json:"day"`
	Sessions int        `json:"sessions"`
	Messages int        `json:"messages"`
	Usage    TokenUsage `json:"usage"`
	Cost     float64    `json:"cost"`
}

// SessionUsage is token usage and derived cost for one session.
type SessionUsage struct {
	SessionID  string     `json:"session_id"`
	Project    string     `json:"project"`
	Messages   int        `json:"messages"`
	Usage      TokenUsage `json:"usage"`
	Cost       float64    `json:"cost"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

// UsageStats aggregates token usage over an optional window.
type UsageStats struct {
	Since     *time.Time     `json:"since,omitempty"`
	Sessions  int            `json:"sessions"`
	Messages  int            `json:"messages"`
	ToolCalls int            `json:"tool_calls"`
	Usage     TokenUsage     `json:"usage"`
	Cost      float64        `json:"cost"`
	ByDay     []DayUsage     `json:"by_day"`
	BySession []SessionUsage `json:"by_session"`
	ByModel   []ModelUsage   `json:"by_model"`
}

// ToolStat aggregates calls of one tool. Durations only cover completed calls.
type ToolStat struct {
	Name         string        `json:"name"`
	Calls        int           `json:"calls"`
	Completed    int           `json:"completed"`
	Errors       int           `json:"errors"`
	MeanDuration time.Duration `json:"mean_duration"`
	MaxDuration  time.Duration `json:"max_duration"`
	LastUsed     time.Time     `json:"last_used"`
}

// ToolHistory is the call history of a single named tool.
type ToolHistory struct {
	Name        string     `json:"name"`
	Stat        *ToolStat  `json:"stat,omitempty"`
	Calls       []ToolCall `json:"calls"`
	Suggestions []string   `json:"suggestions,omitempty"`
}

// BranchStat is session activity grouped by git branch and project.
type BranchStat struct {
	Branch       string     `json:"branch"`
	Project      string     `json:"project"`
	Sessions     int        `json:"sessions"`
	Messages     int        `json:"messages"`
	Usage        TokenUsage `json:"usage"`
	LastActivity time.Time  `json:"last_activity"`
	SessionIDs   []string   `json:"session_ids"`
}

// BillingCycle is the subscription period containing a reference time.
type BillingCycle struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DaysElapsed int       `json:"days_elapsed"`
	TotalDays   int       `json:"total_days"`
}

// PricingReport compares metered cost against a flat subscription for the current cycle.
type PricingReport struct {
	Tier                 string       `json:"tier"`
	Cycle                BillingCycle `json:"cycle"`
	ByModel              []ModelUsage `json:"by_model"`
	Usage                TokenUsage   `json:"usage"`
	MeteredCost          float64      `json:"metered_cost"`
	ProjectedMeteredCost float64      `json:"projected_metered_cost"`
	SubscriptionPrice    float64      `json:"subscription_price"`
	ProratedSubscription float64      `json:"prorated_subscription"`
	BreakEvenTokens      int64        `json:"break_even_tokens"`
	SubscriptionCheaper  bool         `json:"subscription_cheaper"`
	Savings              float64      `json:"savings"`
}

// DebugError is one error signature found in a debug log.
type DebugError struct {
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
