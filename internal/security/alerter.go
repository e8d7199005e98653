// Package security counts failed or throttled security events per client and
// reports when a client crosses an alert threshold.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const defaultPrefix = "floodwatch:alerts"

// AlertResult is the outcome of one observation.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Rule is the threshold for one event/outcome pair.
type Rule struct {
	Threshold int64
	Window    time.Duration
}

// AuditAlerter keeps per-client event counters in Redis fixed windows.
type AuditAlerter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewAuditAlerter creates an alerter backed by Redis counters.
func NewAuditAlerter(addr, password, prefix string) (*AuditAlerter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("security alerter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &AuditAlerter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Observe counts the event for ip and reports whether its rule fired. Events
// without a rule are ignored.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	var result AlertResult
	rule, ok := RuleFor(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := rule.Window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = rule.Threshold
	result.Window = rule.Window
	result.Triggered = count >= rule.Threshold
	return result, nil
}

// Close releases the Redis client.
func (a *AuditAlerter) Close() error {
	return a.client.Close()
}

// RuleFor returns the alert rule for an event outcome. Only failures and
// throttled requests are counted.
func RuleFor(event, outcome string) (Rule, bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return Rule{Threshold: 20, Window: time.Minute}, true
	case "fail":
	default:
		return Rule{}, false
	}
	switch event {
	case "login", "register", "seed_admin":
		return Rule{Threshold: 10, Window: 5 * time.Minute}, true
	case "authorize", "authorize.optional", "admin.authorize":
		return Rule{Threshold: 25, Window: 5 * time.Minute}, true
	}
	return Rule{}, false
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
