// Package geoip resolves the d.country device variable from a client IP.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP looks countries up in a MaxMind database. A JSON list of
// {"net": CIDR, "country": ISO code} ranges is accepted in place of the
// database for development and tests.
type GeoIP struct {
	db     *geoip2.Reader
	ranges []countryRange
}

type countryRange struct {
	network *net.IPNet
	country string
}

// Init opens the database at path.
func Init(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if jerr := json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}

	g := &GeoIP{}
	for _, e := range entries {
		_, n, perr := net.ParseCIDR(e.Net)
		if perr != nil {
			continue
		}
		g.ranges = append(g.ranges, countryRange{network: n, country: e.Country})
	}
	return g, nil
}

// Country returns the ISO country code of ip, or "" when unknown. A nil
// GeoIP knows no country.
func (g *GeoIP) Country(ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	if g.db != nil {
		if rec, err := g.db.Country(ip); err == nil {
			return rec.Country.IsoCode
		}
		return ""
	}
	for _, r := range g.ranges {
		if r.network.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
