// Package report answers the read-only questions asked of the index: usage,
// tools, pricing, branches, debug errors, sessions and todos. It never syncs.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/jasperwreed/agent-index/internal/debuglog"
	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/pricing"
	"github.com/jasperwreed/agent-index/internal/search"
	"github.com/jasperwreed/agent-index/internal/storage"
)

const (
	DefaultSessionLimit = 10
	DefaultToolLimit    = 20
	maxSuggestions      = 3
)

// Reporter runs queries against a store, costing usage with an injected
// pricing table.
type Reporter struct {
	store  *storage.SQLiteStore
	prices *pricing.Table
	debug  *debuglog.Scanner
	now    func() time.Time
}

// New returns a Reporter. debug may be nil, in which case Errors fails.
func New(store *storage.SQLiteStore, prices *pricing.Table, debug *debuglog.Scanner) *Reporter {
	return &Reporter{store: store, prices: prices, debug: debug, now: time.Now}
}

// WithClock replaces the reference time used for "today" and billing cycles.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

func checkLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("%w: limit must be positive, got %d", models.ErrInvalidQuery, limit)
	}
	return nil
}

// StatsOptions selects the stats window. Today wins over Since.
type StatsOptions struct {
	Since        time.Time
	Today        bool
	SessionLimit int
}

// Stats aggregates usage and cost in total and per day, session and model.
func (r *Reporter) Stats(ctx context.Context, opts StatsOptions) (*models.UsageStats, error) {
	if opts.SessionLimit == 0 {
		opts.SessionLimit = DefaultSessionLimit
	}
	if err := checkLimit(opts.SessionLimit); err != nil {
		return nil, err
	}

	now := r.now()
	var w storage.Window
	switch {
	case opts.Today:
		y, m, d := now.Date()
		w.Since = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case !opts.Since.IsZero():
		w.Since = opts.Since
	}

	stats := &models.UsageStats{}
	if !w.Since.IsZero() {
		since := w.Since
		stats.Since = &since
	}

	var err error
	stats.Sessions, stats.Messages, stats.ToolCalls, err = r.store.UsageTotals(ctx, w)
	if err != nil {
		return nil, err
	}

	stats.ByModel, err = r.byModel(ctx, w)
	if err != nil {
		return nil, err
	}
	for _, m := range stats.ByModel {
		stats.Usage.Add(m.Usage)
		stats.Cost += m.Cost
	}

	if stats.ByDay, err = r.byDay(ctx, w, now.Location()); err != nil {
		return nil, err
	}
	if stats.BySession, err = r.bySession(ctx, w, opts.SessionLimit); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *Reporter) byModel(ctx context.Context, w storage.Window) ([]models.ModelUsage, error) {
	rows, err := r.store.UsageByModel(ctx, w)
	if err != nil {
		return nil, err
	}
	out := make([]models.ModelUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ModelUsage{
			Model:    row.Model,
			Messages: row.Messages,
			Usage:    row.Usage,
			Cost:     r.prices.Cost(row.Model, row.Usage),
		})
	}
	return out, nil
}

// byDay folds UTC slots into local calendar days. Each slot is converted with
// the offset in effect at that instant, so days spanning a DST change keep
// their own usage.
func (r *Reporter) byDay(ctx context.Context, w storage.Window, loc *time.Location) ([]models.DayUsage, error) {
	rows, err := r.store.UsageBySlot(ctx, w)
	if err != nil {
		return nil, err
	}
	slots, err := r.store.SessionSlots(ctx, w)
	if err != nil {
		return nil, err
	}

	active := make(map[string]map[string]struct{})
	for _, ss := range slots {
		day := ss.Slot.In(loc).Format("2006-01-02")
		if active[day] == nil {
			active[day] = make(map[string]struct{})
		}
		active[day][ss.SessionID] = struct{}{}
	}

	var out []models.DayUsage
	for _, row := range rows {
		key := row.Slot.In(loc).Format("2006-01-02")
		if len(out) == 0 || out[len(out)-1].Day != key {
			out = append(out, models.DayUsage{Day: key, Sessions: len(active[key])})
		}
		day := &out[len(out)-1]
		day.Messages += row.Messages
		day.Usage.Add(row.Usage)
		day.Cost += r.prices.Cost(row.Model, row.Usage)
	}
	return out, nil
}

func (r *Reporter) bySession(ctx context.Context, w storage.Window, limit int) ([]models.SessionUsage, error) {
	rows, err := r.store.UsageBySession(ctx, w)
	if err != nil {
		return nil, err
	}

	var out []models.SessionUsage
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.Key]
		if !ok {
			if len(out) == limit {
				continue
			}
			i = len(out)
			index[row.Key] = i
			out = append(out, models.SessionUsage{SessionID: row.Key, Project: row.Project, LastSeenAt: row.LastSeen})
		}
		out[i].Messages += row.Messages
		out[i].Usage.Add(row.Usage)
		out[i].Cost += r.prices.Cost(row.Model, row.Usage)
	}
	return out, nil
}

// Search ranks messages matching every term of query.
func (r *Reporter) Search(ctx context.Context, query string, limit int, filters search.Filters) ([]models.SearchResult, error) {
	return search.NewSearcher(r.store).SearchWithFilters(ctx, query, limit, filters)
}

// Tools aggregates every tool, most used first.
func (r *Reporter) Tools(ctx context.Context) ([]models.ToolStat, error) {
	return r.store.ToolStats(ctx)
}

// Tool returns the recent calls of one tool. When the tool was never called
// the history is empty and carries the closest known names.
func (r *Reporter) Tool(ctx context.Context, name string, limit int) (*models.ToolHistory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tool name is empty", models.ErrInvalidQuery)
	}
	if limit == 0 {
		limit = DefaultToolLimit
	}
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	history := &models.ToolHistory{Name: name}
	stat, err := r.store.ToolStat(ctx, name)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		names, err := r.store.ToolNames(ctx)
		if err != nil {
			return nil, err
		}
		history.Suggestions = suggest(name, names)
		return history, nil
	}

	history.Stat = stat
	if history.Calls, err = r.store.ToolCalls(ctx, name, limit); err != nil {
		return nil, err
	}
	return history, nil
}

// suggest ranks known names against a misspelt one. Case-insensitive equals
// come first, then fuzzy matches.
func suggest(name string, names []string) []string {
	var out []string
	for _, n := range names {
		if strings.EqualFold(n, name) {
			out = append(out, n)
		}
	}
	for _, m := range fuzzy.Find(strings.ToLower(name), lowered(names)) {
		if len(out) == maxSuggestions {
			break
		}
		if candidate := names[m.Index]; !strings.EqualFold(candidate, name) {
			out = append(out, candidate)
		}
	}
	return out
}

func lowered(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

// Pricing compares metered cost in the current billing cycle against the
// subscription tier.
func (r *Reporter) Pricing(ctx context.Context, tier string, billingDay int) (*models.PricingReport, error) {
	price, err := r.prices.SubscriptionPrice(tier)
	if err != nil {
		return nil, err
	}
	cycle, err := pricing.Cycle(billingDay, r.now())
	if err != nil {
		return nil, err
	}

	byModel, err := r.byModel(ctx, storage.Window{Since: cycle.Start, Until: cycle.End})
	if err != nil {
		return nil, err
	}

	rep := &models.PricingReport{
		Tier:              pricing.NormalizeTier(tier),
		Cycle:             cycle,
		ByModel:           byModel,
		SubscriptionPrice: price,
		BreakEvenTokens:   r.prices.BreakEvenTokens(price),
	}
	for _, m := range byModel {
		rep.Usage.Add(m.Usage)
		rep.MeteredCost += m.Cost
	}
	rep.ProjectedMeteredCost = pricing.ProjectCycleCost(rep.MeteredCost, cycle.DaysElapsed, cycle.TotalDays)
	if cycle.TotalDays > 0 {
		rep.ProratedSubscription = price * float64(cycle.DaysElapsed) / float64(cycle.TotalDays)
	}
	rep.SubscriptionCheaper = price < rep.ProjectedMeteredCost
	rep.Savings = math.Abs(rep.ProjectedMeteredCost - price)
	return rep, nil
}

// Branches groups activity by git branch, most recently active first.
func (r *Reporter) Branches(ctx context.Context, filter string, limit int) ([]models.BranchStat, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return r.store.Branches(ctx, strings.TrimSpace(filter), limit)
}

// Errors scans debug logs modified in the last daysBack days.
func (r *Reporter) Errors(ctx context.Context, daysBack int) ([]models.DebugError, error) {
	if r.debug == nil {
		return nil, fmt.Errorf("debug log scanning is not configured")
	}
	return r.debug.Scan(ctx, daysBack)
}

// Sessions lists sessions, most recently active first.
func (r *Reporter) Sessions(ctx context.Context, project string, limit int) ([]models.Session, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return r.store.ListSessions(ctx, project, limit)
}

// Session loads one session and its messages by id or unique prefix.
func (r *Reporter) Session(ctx context.Context, idPrefix string) (*models.Session, error) {
	return r.store.GetSession(ctx, idPrefix)
}

// Todos lists todos, optionally only those still open. Open todos sort
// in-progress first.
func (r *Reporter) Todos(ctx context.Context, project string, pendingOnly bool) ([]models.Todo, error) {
	var statuses []string
	if pendingOnly {
		statuses = []string{models.TodoPending, models.TodoInProgress}
	}
	todos, err := r.store.ListTodos(ctx, project, statuses)
	if err != nil {
		return nil, err
	}
	if pendingOnly {
		sort.SliceStable(todos, func(i, j int) bool {
			return todos[i].Status == models.TodoInProgress && todos[j].Status != models.TodoInProgress
		})
	}
	return todos, nil
}
