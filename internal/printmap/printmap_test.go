package printmap

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
)

func dumpToString(t *testing.T, m *addrmap.SubstituteMapper) string {
	t.Helper()

	logFile := filepath.Join(t.TempDir(), "printmap.log")
	writer, err := applog.Configure(logFile, nil)
	require.NoError(t, err)
	go writer.Run()

	Dump(m)
	writer.Stop()

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	return string(contents)
}

func TestDumpStaticOnly(t *testing.T) {
	m := addrmap.NewSubstituteMapper(
		[]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")},
		[]netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")},
		[]addrmap.StaticAssignment{
			{V4: netip.MustParseAddr("198.51.100.1"), V6: netip.MustParseAddr("2001:db8::1")},
		},
		nil,
	)

	out := dumpToString(t, m)
	require.Contains(t, out, staticMappingsBanner)
	require.Contains(t, out, "198.51.100.1 <-> 2001:db8::1")
}

func TestDumpSkipsStaticBannerWhenEmpty(t *testing.T) {
	m := addrmap.NewSubstituteMapper(
		[]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")},
		[]netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")},
		nil,
		nil,
	)

	out := dumpToString(t, m)
	require.NotContains(t, out, staticMappingsBanner)
}

func TestDumpDynamicMappingShowsLifetime(t *testing.T) {
	m := addrmap.NewSubstituteMapper(
		[]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")},
		[]netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")},
		nil,
		&addrmap.DynamicOptions{MinLifetimeAfterLastHit: time.Minute},
	)

	client := netip.MustParseAddr("192.0.2.5")
	v6 := netip.MustParseAddr("2001:db8::99")
	_, _, err := m.Map6to4(v6, client, true)
	require.NoError(t, err)

	out := dumpToString(t, m)
	require.Contains(t, out, "--- Dynamic mappings for 192.0.2.5 ---")
	require.Contains(t, out, "2001:db8::99")
	require.Contains(t, out, "remaining guaranteed lifetime:")
}

func TestLifetimeInfoMayBeReplaced(t *testing.T) {
	info := lifetimeInfo(addrmap.Assignment{RemainingGuaranteedLife: 0})
	require.Equal(t, lifetimeInfoMayBeReplaced, info)
}

func TestLifetimeInfoRemaining(t *testing.T) {
	info := lifetimeInfo(addrmap.Assignment{RemainingGuaranteedLife: 7 * time.Second})
	require.Equal(t, "remaining guaranteed lifetime: 7 seconds", info)
}
