package logic

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveDeviceFromUA(t *testing.T) {
	tests := []struct {
		name             string
		ua               string
		expectedDevice   string
		expectedOS       string // checked with strings.Contains
		expectedPlatform string
	}{
		{
			name:             "iPhone Safari",
			ua:               "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15",
			expectedDevice:   "mobile",
			expectedOS:       "iOS",
			expectedPlatform: "iPhone",
		},
		{
			name:             "Android Chrome",
			ua:               "Mozilla/5.0 (Linux; Android 11; SM-G975F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.58 Mobile Safari/537.36",
			expectedDevice:   "mobile",
			expectedOS:       "Android",
			expectedPlatform: "Linux",
		},
		{
			name:             "iPad Safari",
			ua:               "Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15",
			expectedDevice:   "tablet",
			expectedOS:       "iOS",
			expectedPlatform: "iPad",
		},
		{
			name:           "Empty UA",
			ua:             "",
			expectedDevice: "other",
			expectedOS:     "Unknown",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := ResolveDeviceFromUA(tc.ua)
			if d.DeviceType != tc.expectedDevice {
				t.Errorf("DeviceType: expected '%s', got '%s'", tc.expectedDevice, d.DeviceType)
			}
			if !strings.Contains(d.OS, tc.expectedOS) {
				t.Errorf("OS: expected to contain '%s', got '%s'", tc.expectedOS, d.OS)
			}
			if tc.expectedPlatform != "" && !strings.Contains(d.Platform, tc.expectedPlatform) {
				t.Errorf("Platform: expected to contain '%s', got '%s'", tc.expectedPlatform, d.Platform)
			}
			if strings.HasPrefix(d.OS, "OS") || strings.HasPrefix(d.Platform, "Platform") {
				t.Errorf("enum prefixes should be stripped, got OS=%q Platform=%q", d.OS, d.Platform)
			}
		})
	}
}

func TestResolveDevice_APILevelAndNoGeo(t *testing.T) {
	d := ResolveDevice(nil, "", "203.0.113.7", 33)
	if d.APILevel != 33 {
		t.Errorf("expected api level 33, got %d", d.APILevel)
	}
	if d.Country != "" {
		t.Errorf("expected no country without geoip, got %q", d.Country)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	if got := ClientIP(r); got != "198.51.100.4" {
		t.Errorf("expected remote addr host, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Errorf("expected first forwarded ip, got %q", got)
	}
}
