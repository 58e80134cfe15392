// Package macros expands {NAME} placeholders in campaign output payloads at
// display time, e.g. a landing URL carrying the user id or a cache buster.
package macros

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ExpansionFunc computes the value of one macro.
type ExpansionFunc func(ctx *ExpansionContext) (string, error)

// ExpansionContext is the data available to macros for one display.
type ExpansionContext struct {
	DisplayID     string
	Timestamp     time.Time
	CampaignID    string
	PublicToken   string
	DevTrackingID string
	CustomUserID  string
	Signal        string

	// Custom holds the values reachable as {CUSTOM.key}.
	Custom map[string]string
}

// Expander replaces macros in the string values of a JSON payload. Values
// substituted into a string that holds a URL are query escaped.
type Expander struct {
	logger       *zap.Logger
	expansions   map[string]ExpansionFunc
	expansionsMu sync.RWMutex
	strictMode   bool // any failing macro fails the whole expansion

	expansionCounter *prometheus.CounterVec
	failureCounter   *prometheus.CounterVec
}

// NewExpander returns an expander with the default macros registered. Its
// counters are registered with reg; nil uses a private registry.
func NewExpander(logger *zap.Logger, reg prometheus.Registerer) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	e := &Expander{
		logger:     logger.Named("macros"),
		expansions: make(map[string]ExpansionFunc),
		expansionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macro_expansions_total",
				Help: "Total number of macro expansions performed",
			},
			[]string{"macro", "success"},
		),
		failureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macro_expansion_failures_total",
				Help: "Total number of macro expansion failures",
			},
			[]string{"macro", "error_type"},
		),
	}
	e.registerDefaultMacros()
	return e
}

// SetStrictMode enables or disables strict expansion.
func (e *Expander) SetStrictMode(strict bool) {
	e.strictMode = strict
}

// RegisterMacro adds or replaces a macro.
func (e *Expander) RegisterMacro(name string, fn ExpansionFunc) error {
	if name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("expansion function cannot be nil")
	}
	e.expansionsMu.Lock()
	defer e.expansionsMu.Unlock()
	e.expansions[name] = fn
	return nil
}

// RegisteredMacros returns the names of every registered macro.
func (e *Expander) RegisteredMacros() []string {
	e.expansionsMu.RLock()
	defer e.expansionsMu.RUnlock()
	out := make([]string, 0, len(e.expansions))
	for name := range e.expansions {
		out = append(out, name)
	}
	return out
}

// ExpandPayload expands macros in every string of raw, which must be JSON.
// A payload without placeholders is returned unchanged.
func (e *Expander) ExpandPayload(raw json.RawMessage, ctx *ExpansionContext) (json.RawMessage, error) {
	if len(raw) == 0 || !bytes.ContainsRune(raw, '{') {
		return raw, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw, fmt.Errorf("decode output payload: %w", err)
	}
	expanded, n, err := e.walk(doc, ctx)
	if err != nil {
		return raw, err
	}
	if n == 0 {
		return raw, nil
	}
	return json.Marshal(expanded)
}

func (e *Expander) walk(v any, ctx *ExpansionContext) (any, int, error) {
	switch t := v.(type) {
	case string:
		return e.ExpandString(t, ctx)
	case []any:
		total := 0
		for i, item := range t {
			out, n, err := e.walk(item, ctx)
			if err != nil {
				return v, 0, err
			}
			t[i] = out
			total += n
		}
		return t, total, nil
	case map[string]any:
		total := 0
		for k, item := range t {
			out, n, err := e.walk(item, ctx)
			if err != nil {
				return v, 0, err
			}
			t[k] = out
			total += n
		}
		return t, total, nil
	default:
		return v, 0, nil
	}
}

// ExpandString expands the macros of s and reports how many were found.
// Unknown placeholders are left in place.
func (e *Expander) ExpandString(s string, ctx *ExpansionContext) (string, int, error) {
	if !strings.Contains(s, "{") {
		return s, 0, nil
	}
	escape := strings.Contains(s, "://")

	e.expansionsMu.RLock()
	defer e.expansionsMu.RUnlock()

	var replacements []string
	found := 0
	for name, fn := range e.expansions {
		placeholder := "{" + name + "}"
		if !strings.Contains(s, placeholder) {
			continue
		}
		found++
		value, err := fn(ctx)
		if err != nil {
			e.expansionCounter.WithLabelValues(name, "false").Inc()
			e.failureCounter.WithLabelValues(name, "expansion_error").Inc()
			if e.strictMode {
				return "", 0, fmt.Errorf("macro %s: %w", name, err)
			}
			e.logger.Warn("macro expansion failed, placeholder kept", zap.String("macro", name), zap.Error(err))
			continue
		}
		e.expansionCounter.WithLabelValues(name, "true").Inc()
		replacements = append(replacements, placeholder, encode(value, escape))
	}
	for key, value := range ctx.Custom {
		placeholder := "{CUSTOM." + key + "}"
		if strings.Contains(s, placeholder) {
			found++
			replacements = append(replacements, placeholder, encode(value, escape))
		}
	}

	if len(replacements) == 0 {
		return s, found, nil
	}
	return strings.NewReplacer(replacements...).Replace(s), found, nil
}

func encode(value string, escape bool) string {
	if escape {
		return url.QueryEscape(value)
	}
	return value
}

func (e *Expander) registerDefaultMacros() {
	e.expansions["DISPLAY_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.DisplayID, nil
	}
	e.expansions["CAMPAIGN_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.CampaignID, nil
	}
	e.expansions["CAMPAIGN_TOKEN"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.PublicToken, nil
	}
	e.expansions["DEV_TRACKING_ID"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.DevTrackingID, nil
	}
	e.expansions["CUSTOM_USER_ID"] = func(ctx *ExpansionContext) (string, error) {
		if ctx.CustomUserID == "" {
			return "", fmt.Errorf("no custom user id")
		}
		return ctx.CustomUserID, nil
	}
	e.expansions["SIGNAL"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.Signal, nil
	}
	e.expansions["TIMESTAMP"] = func(ctx *ExpansionContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.Unix(), 10), nil
	}
	e.expansions["TIMESTAMP_MS"] = func(ctx *ExpansionContext) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.UnixMilli(), 10), nil
	}
	e.expansions["ISO_TIMESTAMP"] = func(ctx *ExpansionContext) (string, error) {
		return ctx.Timestamp.Format(time.RFC3339), nil
	}
	e.expansions["UUID"] = func(ctx *ExpansionContext) (string, error) {
		return uuid.NewString(), nil
	}
}
