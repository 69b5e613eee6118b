package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AlertRoute delivers a formatted alert to the admin of a tenant.
type AlertRoute func(ctx context.Context, tenantID int64, text string) error

// AlertConfig controls forwarding of log events to tenant admins. Only
// events carrying a tenant_id field are forwarded.
type AlertConfig struct {
	Enabled bool
	// MinLevel is the lowest level forwarded; events marked with Alert()
	// go out at any level. Defaults to error.
	MinLevel string
	// RatePerSec caps alerts per tenant.
	RatePerSec int
}

const (
	alertKey      = "alert"
	tenantKey     = "tenant_id"
	alertMaxLen   = 3500
	alertValueLen = 600
	alertSendWait = 10 * time.Second
)

var alertMarker = []byte(`"alert":true`)

// Alert marks an event for the tenant admin regardless of its level.
func Alert() Field { return Bool(alertKey, true) }

type alertItem struct {
	tenantID int64
	text     string
}

// alertSink is a zerolog level writer that queues events for the route.
// Writes never block: a full queue or an exhausted tenant budget drops.
type alertSink struct {
	queue  chan alertItem
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	route    AlertRoute
	min      zerolog.Level
	perSec   int
	limiters map[int64]*rate.Limiter
}

func newAlertSink() *alertSink {
	ctx, cancel := context.WithCancel(context.Background())
	a := &alertSink{
		queue:    make(chan alertItem, 256),
		cancel:   cancel,
		min:      zerolog.ErrorLevel,
		perSec:   1,
		limiters: map[int64]*rate.Limiter{},
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx)
	}()
	return a
}

func (a *alertSink) configure(cfg AlertConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.min = parseLevel(cfg.MinLevel, zerolog.ErrorLevel)
	a.perSec = max(1, cfg.RatePerSec)
	clear(a.limiters)
}

func (a *alertSink) setRoute(r AlertRoute) {
	a.mu.Lock()
	a.route = r
	a.mu.Unlock()
}

func (a *alertSink) close() {
	a.cancel()
	a.wg.Wait()
}

func (a *alertSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-a.queue:
			a.mu.Lock()
			route := a.route
			a.mu.Unlock()
			if route == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertSendWait)
			// Delivery errors go to stderr; logging them would alert again.
			if err := route(sctx, it.tenantID, it.text); err != nil {
				fmt.Fprintf(Stderr(), "logx: alert for tenant %d not delivered: %v\n", it.tenantID, err)
			}
			cancel()
		}
	}
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	floor := a.min
	a.mu.Unlock()

	leveled := level != zerolog.NoLevel && level >= floor
	if !leveled && !bytes.Contains(p, alertMarker) {
		return len(p), nil
	}

	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return len(p), nil
	}
	tid, _ := m[tenantKey].(float64)
	if tid <= 0 {
		return len(p), nil
	}
	tenantID := int64(tid)
	if !a.allow(tenantID) {
		return len(p), nil
	}

	select {
	case a.queue <- alertItem{tenantID: tenantID, text: formatAlert(m)}:
	default:
	}
	return len(p), nil
}

func (a *alertSink) allow(tenantID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(a.perSec), a.perSec)
		a.limiters[tenantID] = lim
	}
	return lim.Allow()
}

// formatAlert renders a decoded zerolog line as "[LEVEL] message" followed
// by one "- key=value" line per remaining field, keys sorted.
func formatAlert(m map[string]any) string {
	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName,
			zerolog.CallerFieldName, alertKey, tenantKey:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=" + truncate(fmt.Sprint(m[k]), alertValueLen))
	}
	return truncate(b.String(), alertMaxLen)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
