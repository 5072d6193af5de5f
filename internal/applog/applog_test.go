package applog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureAndWriteLineBlock(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	writer, err := Configure(logFile, []Facility{FacilityDNS})
	require.NoError(t, err)
	go writer.Run()

	require.True(t, Enabled(FacilityDNS))
	require.False(t, Enabled(FacilityXAX))

	WriteLineBlock("hello from the print-map dump")
	writer.Stop()

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(contents), "hello from the print-map dump")
}

func TestFacilityAllEnablesEverything(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	writer, err := Configure(logFile, []Facility{FacilityAll})
	require.NoError(t, err)
	go writer.Run()
	defer writer.Stop()

	require.True(t, Enabled(FacilityDNS))
	require.True(t, Enabled(FacilitySAQ))
	require.True(t, Enabled(FacilityXAX))
}

func TestWriterDropsOnFullQueue(t *testing.T) {
	w := NewWriter(discard{})

	for i := 0; i < queueCapacity+10; i++ {
		_, _ = w.Write([]byte("x"))
	}

	require.Greater(t, w.Dropped(), uint64(0))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
