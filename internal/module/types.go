package module

import "time"

// Module represents a single greenhouse control module: a networked device
// carrying temperature, humidity and light sensors plus the matching
// actuators. The MAC address is the natural key a device identifies itself
// with; ID is the surrogate key everything else references.
type Module struct {
	// ID is the unique module identifier (UUID).
	ID string `json:"id"`

	// MACAddress is the hardware address the device reports on connect.
	// Unique across all modules.
	MACAddress string `json:"mac_address"`

	// IPAddress is the last address the device connected from.
	IPAddress string `json:"ip_address"`

	// Name is an optional user-assigned label.
	Name *string `json:"name,omitempty"`

	// OwnerID references the user who claimed this module.
	// Nil means the module is unclaimed and available.
	OwnerID *string `json:"owner_id,omitempty"`

	// GreenhouseID references the greenhouse this module belongs to.
	// Nil means ungrouped.
	GreenhouseID *string `json:"greenhouse_id,omitempty"`

	// Target setpoints for the three regulation channels.
	// Nil means "no target": the channel's actuator stays off.
	TargetTemperature *float64 `json:"target_temperature,omitempty"`
	TargetHumidity    *float64 `json:"target_humidity,omitempty"`
	TargetLighting    *float64 `json:"target_lighting,omitempty"`

	// IsActive reports whether regulation is switched on.
	// Only the owner toggles this; registration never does.
	IsActive bool `json:"is_active"`

	// Last observed sensor values, denormalised from sensor history for
	// cheap dashboard reads.
	LastTemperature   *float64   `json:"last_temperature,omitempty"`
	LastTemperatureAt *time.Time `json:"last_temperature_at,omitempty"`
	LastHumidity      *float64   `json:"last_humidity,omitempty"`
	LastHumidityAt    *time.Time `json:"last_humidity_at,omitempty"`
	LastLight         *float64   `json:"last_light,omitempty"`
	LastLightAt       *time.Time `json:"last_light_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Targets returns the module's three setpoints as a value object for the
// decision engine.
func (m *Module) Targets() Targets {
	return Targets{
		Temperature: m.TargetTemperature,
		Humidity:    m.TargetHumidity,
		Lighting:    m.TargetLighting,
	}
}

// IsClaimed reports whether the module has an owner.
func (m *Module) IsClaimed() bool {
	return m.OwnerID != nil
}

// Targets holds the per-channel setpoints. A nil channel means no target
// is configured and that channel's actuator is never driven on.
type Targets struct {
	Temperature *float64
	Humidity    *float64
	Lighting    *float64
}

// Sample is one simultaneous reading of all three sensors, as reported by
// a device requesting an actuation decision.
type Sample struct {
	Temperature float64 `json:"Temperature"`
	Humidity    float64 `json:"Humidity"`
	Light       float64 `json:"Light"`
}

// Signal is a binary actuator command.
type Signal string

// Actuator commands returned to devices.
const (
	SignalOn  Signal = "ON"
	SignalOff Signal = "OFF"
)

// Actuation is the per-channel decision returned to a device.
type Actuation struct {
	Temperature Signal `json:"Temperature"`
	Humidity    Signal `json:"Humidity"`
	Light       Signal `json:"Light"`
}

// Settings is a partial update of a module's setpoints. Nil fields are
// left untouched.
type Settings struct {
	TargetTemperature *float64 `json:"target_temperature"`
	TargetHumidity    *float64 `json:"target_humidity"`
	TargetLighting    *float64 `json:"target_lighting"`
}

// Kind identifies a sensor channel in history records.
type Kind string

// Sensor channels.
const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindLight       Kind = "light"
)

// Valid reports whether k is a known sensor channel.
func (k Kind) Valid() bool {
	switch k {
	case KindTemperature, KindHumidity, KindLight:
		return true
	}
	return false
}

// Entry is one immutable sensor history record.
type Entry struct {
	Kind       Kind      `json:"kind"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"time"`
}

// Series is a windowed history query result, grouped by channel with each
// slice ordered by time ascending.
type Series struct {
	Temperature []Entry `json:"temperature"`
	Humidity    []Entry `json:"humidity"`
	Light       []Entry `json:"light"`
}
