package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"appeals-platform/internal/rbac"
)

// MemoryRepository keeps entries in append order. Used by tests and local dev.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Append(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, cloneEntry(e))
	return nil
}

func (m *MemoryRepository) Query(ctx context.Context, f Filters, s Sort, p Page) ([]Entry, int, error) {
	matched := m.collect(f, s)
	total := len(matched)

	if p.Offset >= total {
		return []Entry{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return matched[p.Offset:end], total, nil
}

func (m *MemoryRepository) Stream(ctx context.Context, f Filters, s Sort, fn func(Entry) error) error {
	for _, e := range m.collect(f, s) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var purged int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

func (m *MemoryRepository) collect(f Filters, s Sort) []Entry {
	m.mu.RLock()
	var matched []Entry
	for _, e := range m.entries {
		if matches(e, f) {
			matched = append(matched, cloneEntry(e))
		}
	}
	m.mu.RUnlock()

	sortEntries(matched, s)
	return matched
}

func matches(e Entry, f Filters) bool {
	if f.Tenant != "" && f.Tenant != rbac.TenantAll && string(e.TenantType) != f.Tenant {
		return false
	}
	if f.Actor != "" {
		needle := strings.ToLower(f.Actor)
		if !strings.Contains(strings.ToLower(e.UserEmail), needle) &&
			!strings.Contains(strings.ToLower(e.UserID), needle) {
			return false
		}
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.RoutePrefix != "" && !strings.HasPrefix(e.Route, f.RoutePrefix) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func sortEntries(entries []Entry, s Sort) {
	less := func(a, b Entry) bool {
		switch s.Field {
		case "action":
			if a.Action != b.Action {
				return a.Action < b.Action
			}
		case "status":
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		// Ties break on id, which is time-ordered for generated ids.
		return a.ID < b.ID
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if s.Descending {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

func cloneEntry(e Entry) Entry {
	if e.Details == nil {
		return e
	}
	out := e
	out.Details = cloneDetails(e.Details)
	return out
}

func cloneDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneDetails(t)
		case []any:
			out[k] = append([]any(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}
