package transport

import (
	"strings"
	"time"
)

// VehicleMode is the fixed set of transport modes served by the HSL network.
type VehicleMode string

const (
	ModeBus    VehicleMode = "BUS"
	ModeTram   VehicleMode = "TRAM"
	ModeTrain  VehicleMode = "TRAIN"
	ModeSubway VehicleMode = "SUBWAY"
	ModeFerry  VehicleMode = "FERRY"
)

// Modes lists every known vehicle mode.
func Modes() []VehicleMode {
	return []VehicleMode{ModeBus, ModeTram, ModeTrain, ModeSubway, ModeFerry}
}

// ParseMode case-normalizes a raw mode string and matches it against the
// known modes. The second return value is false for unknown or empty input;
// callers are expected to fall back to ModeBus.
func ParseMode(raw string) (VehicleMode, bool) {
	mode := VehicleMode(strings.ToUpper(strings.TrimSpace(raw)))
	switch mode {
	case ModeBus, ModeTram, ModeTrain, ModeSubway, ModeFerry:
		return mode, true
	}
	return ModeBus, false
}

// Position is a latitude/longitude pair owned by exactly one vehicle or
// station record.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Vehicle is one canonical vehicle sighting. Identity is the external
// vehicle ID; the stored record is latest-wins.
type Vehicle struct {
	ID            string      `json:"id"`
	RouteID       string      `json:"route_id,omitempty"`
	TripID        string      `json:"trip_id,omitempty"`
	Mode          VehicleMode `json:"mode"`
	Position      Position    `json:"position"`
	Speed         *float64    `json:"speed,omitempty"`
	Heading       *int        `json:"heading,omitempty"`
	VehicleNumber string      `json:"vehicle_number,omitempty"`
	OperatorID    string      `json:"operator_id,omitempty"`
	ObservedAt    time.Time   `json:"timestamp"`
}

// Station is a canonical stop record. Identity is the external station ID
// where the feed provides one, otherwise the (name, platform code) pair.
type Station struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Code         string   `json:"code,omitempty"`
	Position     Position `json:"position"`
	Routes       []string `json:"routes,omitempty"`
	PlatformCode string   `json:"platform_code,omitempty"`
	Description  string   `json:"description,omitempty"`
	ZoneID       string   `json:"zone_id,omitempty"`
}

// RoutePattern is an ordered stop sequence within a route.
type RoutePattern struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Stops []string `json:"stops"`
}

// Route is a canonical transport route, refreshed wholesale per fetch.
type Route struct {
	ID         string         `json:"id"`
	ShortName  string         `json:"short_name"`
	LongName   string         `json:"long_name,omitempty"`
	Mode       VehicleMode    `json:"mode"`
	OperatorID string         `json:"operator_id,omitempty"`
	Patterns   []RoutePattern `json:"patterns"`
	Color      string         `json:"color,omitempty"`
	TextColor  string         `json:"text_color,omitempty"`
}

// StatCount is one aggregated counter bucket returned by the stats queries.
type StatCount struct {
	Timestamp time.Time              `json:"timestamp"`
	Category  string                 `json:"category"`
	Count     int64                  `json:"count"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
