package logic

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/inappserve/internal/geoip"
	"github.com/patrickwarner/inappserve/internal/models"
)

// ResolveDeviceFromUA parses a raw User-Agent string into the device fields
// exposed to guards as d.os, d.os_version, d.platform and d.device_type.
func ResolveDeviceFromUA(uaString string) models.DeviceInfo {
	u := uasurfer.Parse(uaString)

	var deviceType string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	case uasurfer.DeviceTV:
		deviceType = "tv"
	default:
		deviceType = "other"
	}

	v := u.OS.Version
	return models.DeviceInfo{
		OS:         strings.TrimPrefix(u.OS.Name.String(), "OS"),
		OSVersion:  fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch),
		Platform:   strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		DeviceType: deviceType,
	}
}

// ResolveDevice builds the device description from the User-Agent and client
// IP. apiLevel is the host API level, which a User-Agent does not carry.
func ResolveDevice(g *geoip.GeoIP, uaString, ipString string, apiLevel int) models.DeviceInfo {
	d := ResolveDeviceFromUA(uaString)
	d.APILevel = apiLevel
	if ip := net.ParseIP(ipString); ip != nil && g != nil {
		d.Country = g.Country(ip)
	}
	return d
}

// ResolveDeviceFromRequest extracts the device description from an HTTP request.
func ResolveDeviceFromRequest(r *http.Request, g *geoip.GeoIP, apiLevel int) models.DeviceInfo {
	return ResolveDevice(g, r.Header.Get("User-Agent"), ClientIP(r), apiLevel)
}

// ClientIP returns the originating IP of r, preferring X-Forwarded-For.
func ClientIP(r *http.Request) string {
	ipStr := r.Header.Get("X-Forwarded-For")
	if ipStr == "" {
		ipStr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ipStr); err == nil {
			ipStr = host
		}
		return ipStr
	}
	// X-Forwarded-For can be comma-separated, take first IP
	if idx := strings.Index(ipStr, ","); idx != -1 {
		ipStr = ipStr[:idx]
	}
	return strings.TrimSpace(ipStr)
}
