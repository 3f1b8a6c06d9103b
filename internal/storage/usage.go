package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
)

// Window bounds a usage query. Zero values leave that side open.
type Window struct {
	Since time.Time
	Until time.Time
}

func (w Window) bounds() (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !w.Since.IsZero() {
		lo = w.Since.UnixMilli()
	}
	if !w.Until.IsZero() {
		hi = w.Until.UnixMilli()
	}
	return lo, hi
}

// UsageRow is token usage for one model within a grouping key (a time
// slot, a session, or nothing at all).
type UsageRow struct {
	Key      string
	Slot     time.Time
	Project  string
	LastSeen time.Time
	Model    string
	Messages int
	Usage    models.TokenUsage
}

// UsageTotals counts sessions, messages and tool calls inside the window.
func (s *SQLiteStore) UsageTotals(ctx context.Context, w Window) (sessions, messages, toolCalls int, err error) {
	lo, hi := w.bounds()
	if err = s.readDB.QueryRowContext(ctx, queryUsageTotals, lo, hi).Scan(&sessions, &messages); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count usage: %w", err)
	}
	if err = s.readDB.QueryRowContext(ctx, queryToolCallTotal, lo, hi).Scan(&toolCalls); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count tool calls: %w", err)
	}
	return sessions, messages, toolCalls, nil
}

// UsageByModel sums token usage per model.
func (s *SQLiteStore) UsageByModel(ctx context.Context, w Window) ([]UsageRow, error) {
	lo, hi := w.bounds()
	rows, err := s.readDB.QueryContext(ctx, queryUsageByModel, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage by model: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		if err := rows.Scan(&r.Model, &r.Messages, &r.Usage.InputTokens, &r.Usage.OutputTokens,
			&r.Usage.CacheCreationTokens, &r.Usage.CacheReadTokens); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SlotSize is the width of the UTC buckets returned by UsageBySlot and
// SessionSlots. Every zone offset in use is a multiple of it, so a slot never
// straddles a local midnight.
const SlotSize = 15 * time.Minute

// SessionSlot marks a session as active within the slot starting at Slot.
type SessionSlot struct {
	Slot      time.Time
	SessionID string
}

// UsageBySlot sums token usage per SlotSize bucket and model, oldest first.
func (s *SQLiteStore) UsageBySlot(ctx context.Context, w Window) ([]UsageRow, error) {
	lo, hi := w.bounds()
	rows, err := s.readDB.QueryContext(ctx, queryUsageBySlotModel, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage by time: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		var slot int64
		if err := rows.Scan(&slot, &r.Model, &r.Messages, &r.Usage.InputTokens, &r.Usage.OutputTokens,
			&r.Usage.CacheCreationTokens, &r.Usage.CacheReadTokens); err != nil {
			return nil, err
		}
		r.Slot = time.UnixMilli(slot).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionSlots lists the buckets in which each session had messages.
func (s *SQLiteStore) SessionSlots(ctx context.Context, w Window) ([]SessionSlot, error) {
	lo, hi := w.bounds()
	rows, err := s.readDB.QueryContext(ctx, querySessionSlots, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query session activity: %w", err)
	}
	defer rows.Close()

	var out []SessionSlot
	for rows.Next() {
		var ss SessionSlot
		var slot int64
		if err := rows.Scan(&slot, &ss.SessionID); err != nil {
			return nil, err
		}
		ss.Slot = time.UnixMilli(slot).UTC()
		out = append(out, ss)
	}
	return out, rows.Err()
}

// UsageBySession sums token usage per session and model, most recently active first.
func (s *SQLiteStore) UsageBySession(ctx context.Context, w Window) ([]UsageRow, error) {
	lo, hi := w.bounds()
	rows, err := s.readDB.QueryContext(ctx, queryUsageBySessionModel, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage by session: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		var lastSeen int64
		if err := rows.Scan(&r.Key, &r.Project, &lastSeen, &r.Model, &r.Messages,
			&r.Usage.InputTokens, &r.Usage.OutputTokens,
			&r.Usage.CacheCreationTokens, &r.Usage.CacheReadTokens); err != nil {
			return nil, err
		}
		r.LastSeen = fromMillis(lastSeen)
		out = append(out, r)
	}
	return out, rows.Err()
}
