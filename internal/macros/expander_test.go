package macros

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testContext() *ExpansionContext {
	return &ExpansionContext{
		DisplayID:    "d-1",
		Timestamp:    time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC),
		CampaignID:   "spring sale",
		PublicToken:  "tok",
		CustomUserID: "user 1",
		Signal:       "PURCHASE",
		Custom:       map[string]string{"coupon": "SAVE10"},
	}
}

func TestExpandString(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil)
	ctx := testContext()

	tests := []struct {
		name  string
		in    string
		want  string
		found int
	}{
		{"no placeholders", "Hello", "Hello", 0},
		{"plain text keeps values raw", "Hi {CUSTOM_USER_ID}, use {CUSTOM.coupon}", "Hi user 1, use SAVE10", 2},
		{"urls are query escaped", "https://x.io/l?c={CAMPAIGN_ID}&u={CUSTOM_USER_ID}", "https://x.io/l?c=spring+sale&u=user+1", 2},
		{"timestamps", "{TIMESTAMP}|{TIMESTAMP_MS}|{ISO_TIMESTAMP}", "1717761600|1717761600000|2024-06-07T12:00:00Z", 3},
		{"unknown placeholder kept", "{NOPE} {SIGNAL}", "{NOPE} PURCHASE", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := e.ExpandString(tt.in, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, found)
		})
	}
}

func TestExpandString_FailingMacro(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExpander(zap.NewNop(), reg)
	ctx := testContext()
	ctx.CustomUserID = ""

	got, _, err := e.ExpandString("id={CUSTOM_USER_ID}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "id={CUSTOM_USER_ID}", got)
	var m dto.Metric
	require.NoError(t, e.failureCounter.WithLabelValues("CUSTOM_USER_ID", "expansion_error").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	e.SetStrictMode(true)
	_, _, err = e.ExpandString("id={CUSTOM_USER_ID}", ctx)
	assert.Error(t, err)
}

func TestExpandPayload(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil)
	raw := json.RawMessage(`{"title": "Hello {CUSTOM_USER_ID}", "buttons": [{"url": "app://open?d={DISPLAY_ID}"}], "count": 3}`)

	out, err := e.ExpandPayload(raw, testContext())
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "Hello user 1", "buttons": [{"url": "app://open?d=d-1"}], "count": 3}`, string(out))

	plain := json.RawMessage(`{"title": "static"}`)
	out, err = e.ExpandPayload(plain, testContext())
	require.NoError(t, err)
	assert.Equal(t, string(plain), string(out))

	_, err = e.ExpandPayload(json.RawMessage(`{broken`), testContext())
	assert.Error(t, err)
}

func TestRegisterMacro(t *testing.T) {
	e := NewExpander(zap.NewNop(), nil)
	require.NoError(t, e.RegisterMacro("APP_VERSION", func(*ExpansionContext) (string, error) { return "1.2.3", nil }))
	assert.Error(t, e.RegisterMacro("", nil))
	assert.Contains(t, e.RegisteredMacros(), "APP_VERSION")

	got, _, err := e.ExpandString("v{APP_VERSION}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", got)
}
