package geoip

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	data := `[{"net": "10.0.0.0/8", "country": "FR"}, {"net": "bogus", "country": "XX"}, {"net": "2001:db8::/32", "country": "DE"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	g, err := Init(path)
	require.NoError(t, err)
	defer func() { _ = g.Close() }()

	assert.Equal(t, "FR", g.Country(net.ParseIP("10.1.2.3")))
	assert.Equal(t, "DE", g.Country(net.ParseIP("2001:db8::1")))
	assert.Equal(t, "", g.Country(net.ParseIP("192.168.0.1")))
	assert.Equal(t, "", g.Country(nil))
}

func TestInit_Missing(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)

	var g *GeoIP
	assert.Equal(t, "", g.Country(net.ParseIP("10.1.2.3")))
	assert.NoError(t, g.Close())
}
