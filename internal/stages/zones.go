package stages

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Zone is a restricted area: a center point and a radius in kilometers.
type Zone struct {
	Name      string          `yaml:"name"`
	Latitude  float64         `yaml:"latitude"`
	Longitude float64         `yaml:"longitude"`
	RadiusKM  float64         `yaml:"radius_km"`
	Severity  models.Severity `yaml:"severity"`
}

type zoneFile struct {
	Zones []Zone `yaml:"zones"`
}

// LoadZones reads restricted zones from a YAML file. An empty path or a
// missing file yields no zones, which leaves the geofence stage inert.
func LoadZones(path string) ([]Zone, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	var file zoneFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse zones file: %w", err)
	}

	for i := range file.Zones {
		zone := &file.Zones[i]
		if zone.Name == "" {
			return nil, fmt.Errorf("zone %d: name is required", i)
		}
		if zone.Latitude < -90 || zone.Latitude > 90 || zone.Longitude < -180 || zone.Longitude > 180 {
			return nil, fmt.Errorf("zone %q: center coordinates out of range", zone.Name)
		}
		if zone.RadiusKM <= 0 {
			return nil, fmt.Errorf("zone %q: radius must be positive", zone.Name)
		}
		if zone.Severity == "" {
			zone.Severity = models.SeverityHigh
		}
		if !models.ValidSeverity(zone.Severity) {
			return nil, fmt.Errorf("zone %q: unknown severity %q", zone.Name, zone.Severity)
		}
	}

	return file.Zones, nil
}
