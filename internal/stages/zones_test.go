package stages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

func writeZoneFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadZones_ValidFile(t *testing.T) {
	path := writeZoneFile(t, `
zones:
  - name: harbor-exclusion
    latitude: 51.95
    longitude: 4.05
    radius_km: 5
    severity: HIGH
  - name: airfield-perimeter
    latitude: 52.31
    longitude: 4.76
    radius_km: 2
    severity: CRITICAL
`)

	zones, err := LoadZones(path)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "harbor-exclusion", zones[0].Name)
	assert.Equal(t, 5.0, zones[0].RadiusKM)
	assert.Equal(t, models.SeverityCritical, zones[1].Severity)
}

func TestLoadZones_SeverityDefaultsToHigh(t *testing.T) {
	path := writeZoneFile(t, `
zones:
  - name: depot
    latitude: 52.0
    longitude: 4.0
    radius_km: 1
`)

	zones, err := LoadZones(path)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, models.SeverityHigh, zones[0].Severity)
}

func TestLoadZones_EmptyPathAndMissingFile(t *testing.T) {
	zones, err := LoadZones("")
	require.NoError(t, err)
	assert.Nil(t, zones)

	zones, err = LoadZones(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Nil(t, zones)
}

func TestLoadZones_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"missing name",
			"zones:\n  - latitude: 52.0\n    longitude: 4.0\n    radius_km: 1\n",
		},
		{
			"latitude out of range",
			"zones:\n  - name: bad\n    latitude: 99.0\n    longitude: 4.0\n    radius_km: 1\n",
		},
		{
			"zero radius",
			"zones:\n  - name: bad\n    latitude: 52.0\n    longitude: 4.0\n    radius_km: 0\n",
		},
		{
			"unknown severity",
			"zones:\n  - name: bad\n    latitude: 52.0\n    longitude: 4.0\n    radius_km: 1\n    severity: URGENT\n",
		},
		{
			"not yaml",
			"{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeZoneFile(t, tt.content)
			_, err := LoadZones(path)
			assert.Error(t, err)
		})
	}
}
