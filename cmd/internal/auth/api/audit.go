package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions written by the handler.
const (
	actionSignup           = "auth.signup"
	actionLoginFailed      = "auth.login.failed"
	actionLoginSuccess     = "auth.login.success"
	actionLoginRateLimited = "auth.login.rate_limited"
	actionRefreshSuccess   = "auth.refresh.success"
	actionRefreshReuse     = "auth.refresh.reuse_detected"
	actionLogout           = "auth.logout"
	actionLogoutAll        = "auth.logout_all"
)

// Event is one audit_log row.
type Event struct {
	Action    string
	UserID    string
	SessionID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// FailureQuery selects auth.login.failed events by IP or by identifier.
// Exactly one of IP and Identifier is set.
type FailureQuery struct {
	IP         net.IP
	Identifier string
	Since      time.Time
	Limit      int
}

// Auditor records auth events and reads back recent login failures, newest first.
type Auditor interface {
	Record(ctx context.Context, ev Event) error
	LoginFailures(ctx context.Context, q FailureQuery) ([]time.Time, error)
}

// PostgresAuditLog writes to <schema>.audit_log.
type PostgresAuditLog struct {
	pool  *pgxpool.Pool
	table string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewPostgresAuditLog(pool *pgxpool.Pool, schema string) (*PostgresAuditLog, error) {
	if pool == nil {
		return nil, errors.New("authapi: nil pool")
	}
	if schema == "" {
		schema = "hearth"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("authapi: invalid schema identifier %q", schema)
	}
	return &PostgresAuditLog{pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (a *PostgresAuditLog) Record(ctx context.Context, ev Event) error {
	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}
	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO `+a.table+` (user_id, session_id, action, created_at, ip, user_agent, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		nullIfEmpty(ev.UserID), nullIfEmpty(ev.SessionID), ev.Action, ev.At.UTC(), ipVal, nullIfEmpty(ev.UserAgent), metaVal,
	)
	return err
}

func (a *PostgresAuditLog) LoginFailures(ctx context.Context, q FailureQuery) ([]time.Time, error) {
	var (
		where string
		arg   any
	)
	switch {
	case q.IP != nil:
		where, arg = "ip = $2", q.IP.String()
	case q.Identifier != "":
		where, arg = "meta->>'identifier' = $2", q.Identifier
	default:
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := a.pool.Query(ctx,
		`SELECT created_at FROM `+a.table+`
		  WHERE action = $1 AND `+where+` AND created_at >= $3
		  ORDER BY created_at DESC
		  LIMIT $4`,
		actionLoginFailed, arg, q.Since.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

// MemoryAuditLog keeps events in process. Used when no database is configured.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []Event
	max    int
}

func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{max: 10_000} }

func (a *MemoryAuditLog) Record(_ context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	if over := len(a.events) - a.max; over > 0 {
		a.events = slices.Delete(a.events, 0, over)
	}
	return nil
}

func (a *MemoryAuditLog) LoginFailures(_ context.Context, q FailureQuery) ([]time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []time.Time
	for i := len(a.events) - 1; i >= 0; i-- {
		ev := a.events[i]
		if ev.Action != actionLoginFailed || ev.At.Before(q.Since) {
			continue
		}
		switch {
		case q.IP != nil:
			if !q.IP.Equal(ev.IP) {
				continue
			}
		case q.Identifier != "":
			if id, _ := ev.Meta["identifier"].(string); id != q.Identifier {
				continue
			}
		default:
			return nil, nil
		}
		out = append(out, ev.At)
	}
	slices.SortFunc(out, func(x, y time.Time) int { return y.Compare(x) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Actions returns the recorded actions in order.
func (a *MemoryAuditLog) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, ev := range a.events {
		out[i] = ev.Action
	}
	return out
}

func nullIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

func (h *Handler) record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	// Audit writes outlive a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.audit.Record(ctx, ev); err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", ev.Action)
	}
}
