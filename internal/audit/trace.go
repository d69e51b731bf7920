package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"appeals-platform/internal/rbac"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TraceWindow bounds a correlation trace around its reference time.
const TraceWindow = 5 * time.Minute

// Trace returns every entry sharing a correlation id, oldest first.
// When reference is non-zero the result is limited to reference +/- TraceWindow
// so a deep link lands on the incident, not the id's whole history.
// The principal's tenant scope applies as in Query.
func (s *Service) Trace(ctx context.Context, principal rbac.AdminUser, correlationID string, reference time.Time) ([]Entry, error) {
	if correlationID == "" {
		return nil, errors.New("audit: correlation id is required")
	}

	f := Filters{CorrelationID: correlationID}
	if !reference.IsZero() {
		f.From = reference.Add(-TraceWindow)
		f.To = reference.Add(TraceWindow)
	}
	f = scopeFilters(principal, f)

	var out []Entry
	err := s.repo.Stream(ctx, f, Sort{Field: "createdAt"}, func(e Entry) error {
		out = append(out, RedactEntry(e))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FragmentLink renders the stateless deep-link fragment for a correlation id.
// The UI parses it back without a server round trip.
func FragmentLink(correlationID string) string {
	return "cid=" + correlationID
}

var ErrShareLinkNotFound = errors.New("audit: share link not found or expired")

// SharedTrace pins a correlation id and its reference time so a resolved link
// reproduces the exact same window later.
type SharedTrace struct {
	CorrelationID string    `json:"correlationId"`
	Reference     time.Time `json:"reference"`
	CreatedBy     string    `json:"createdBy"`
}

// ShareLinks stores opaque share tokens in redis with a TTL.
type ShareLinks struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewShareLinks(rdb *redis.Client, ttl time.Duration) *ShareLinks {
	return &ShareLinks{rdb: rdb, ttl: ttl}
}

func shareKey(token string) string {
	return "audit:share:" + token
}

// Create stores the trace reference and returns the opaque token.
func (l *ShareLinks) Create(ctx context.Context, st SharedTrace) (string, error) {
	if st.CorrelationID == "" {
		return "", errors.New("audit: correlation id is required")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := l.rdb.Set(ctx, shareKey(token), payload, l.ttl).Err(); err != nil {
		return "", fmt.Errorf("store share link: %w", err)
	}
	return token, nil
}

// Resolve returns the pinned trace for a token, or ErrShareLinkNotFound once
// the TTL has elapsed.
func (l *ShareLinks) Resolve(ctx context.Context, token string) (SharedTrace, error) {
	payload, err := l.rdb.Get(ctx, shareKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SharedTrace{}, ErrShareLinkNotFound
	}
	if err != nil {
		return SharedTrace{}, fmt.Errorf("load share link: %w", err)
	}

	var st SharedTrace
	if err := json.Unmarshal(payload, &st); err != nil {
		return SharedTrace{}, fmt.Errorf("decode share link: %w", err)
	}
	return st, nil
}
