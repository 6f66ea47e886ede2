package sources

import (
	"fmt"
	"sort"
)

// Config carries everything a constructor needs to build the sources of one
// registered device.
type Config struct {
	User      string
	DeviceID  string
	Auth      map[string]string
	Latitude  *float64
	Longitude *float64
}

// Constructor builds the metric sources exposed by one device type. A single
// device may expose several categories (a bracelet reports both health
// status and sleep).
type Constructor func(cfg Config) ([]Source, error)

// registry maps device-type identifiers to constructors. Closed set: device
// types are never instantiated from user-provided code or names outside
// this table.
var registry = map[string]Constructor{
	"fitbit_charge_3":  newFitbit,
	"foobot":           newFoobot,
	"openweather_api":  newOpenWeather,
	"gps_phone_tracer": newPhoneGPS,
}

// New builds the sources of a device, failing on unknown types.
func New(deviceType string, cfg Config) ([]Source, error) {
	ctor, ok := registry[deviceType]
	if !ok {
		return nil, fmt.Errorf("unsupported device type %q", deviceType)
	}
	return ctor(cfg)
}

// SupportedTypes lists the registered device-type identifiers, sorted.
func SupportedTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
