package center

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/analytics"
	"github.com/patrickwarner/inappserve/internal/macros"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/observability"
	"github.com/patrickwarner/inappserve/internal/remote"
)

// State is the lifecycle stage of a Center.
type State int32

const (
	StateUninitialized State = iota
	StateCacheLoaded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCacheLoaded:
		return "cache_loaded"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// JITFallback decides what happens to JIT campaigns when the server cannot
// answer: no response, a timeout, an error status or a retry-after cooldown.
type JITFallback string

const (
	// FallbackDisplay displays the best JIT campaign as if the server had
	// accepted it.
	FallbackDisplay JITFallback = "display"
	// FallbackSkip drops the JIT campaigns; the best non-JIT campaign, if
	// any, is displayed instead.
	FallbackSkip JITFallback = "skip"
)

// ParseJITFallback parses "display" or "skip". An empty string is
// FallbackDisplay.
func ParseJITFallback(s string) (JITFallback, error) {
	switch JITFallback(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackDisplay:
		return FallbackDisplay, nil
	case FallbackSkip:
		return FallbackSkip, nil
	}
	return "", fmt.Errorf("unknown JIT fallback %q", s)
}

// Output renders campaigns. A nil error means the campaign was shown and a
// view is recorded.
type Output interface {
	Display(ctx context.Context, c *models.Campaign) error
}

// PayloadCache is the single slot the persistable payload is kept in across
// restarts.
type PayloadCache interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, raw []byte) error
}

// RemoteClient is the campaign server.
type RemoteClient interface {
	FetchCampaigns(ctx context.Context) ([]byte, error)
	CheckEligibility(ctx context.Context, req remote.JITRequest) (remote.JITResponse, error)
}

// LoadedListener is called on the center's queue after every payload
// replacement with the new campaign list.
type LoadedListener func(campaigns []*models.Campaign)

// Options configure the engine.
type Options struct {
	// APILevel of the host, used when a signal's device does not carry one.
	APILevel int
	// Location of the user. Quiet hours and floating dates are evaluated in
	// it. Defaults to time.Local.
	Location *time.Location
	// CustomUserID is attached to analytics events.
	CustomUserID string
	JITFallback  JITFallback
	// JITTimeout bounds a JIT request in addition to the transport timeout.
	JITTimeout time.Duration
	// Now is the engine clock. Defaults to time.Now.
	Now func() time.Time
	// TrackingAllowed is queried on every tracked event. nil allows.
	TrackingAllowed func() bool
	// DebugTrace records a selection trace for every signal.
	DebugTrace bool
	// QueueSize is the capacity of the serial queue. Defaults to 256.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.JITFallback == "" {
		o.JITFallback = FallbackDisplay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.TrackingAllowed == nil {
		o.TrackingAllowed = func() bool { return true }
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	return o
}

// Dependencies are the collaborators of a Center. Only Output is needed to
// display anything; every other nil dependency degrades to a no-op or an
// in-memory default.
type Dependencies struct {
	Tracker    models.ViewTracker
	Output     Output
	Cache      PayloadCache
	Remote     RemoteClient
	Attributes models.AttributeSource
	Analytics  analytics.DisplayRecorder
	// Macros expands placeholders in output payloads before display.
	Macros  *macros.Expander
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger
}
