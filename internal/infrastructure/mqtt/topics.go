package mqtt

import "fmt"

// Topic prefixes for the Greenhouse Core MQTT hierarchy.
//
// All topics use the flat scheme: greenhouse/{category}/{module_id}[/{detail}]
const (
	// TopicPrefix is the base for all Greenhouse Core topics.
	TopicPrefix = "greenhouse"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "greenhouse/system"
)

// Topics provides builders for Greenhouse Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Telemetry("mod-abc", "temperature")
//	// Returns: "greenhouse/telemetry/mod-abc/temperature"
type Topics struct{}

// Telemetry returns the topic for one sensor channel of one module.
//
// Example: greenhouse/telemetry/mod-abc/temperature
func (Topics) Telemetry(moduleID, kind string) string {
	return fmt.Sprintf("%s/telemetry/%s/%s", TopicPrefix, moduleID, kind)
}

// Actuation returns the topic carrying actuation decisions for a module.
//
// Example: greenhouse/actuation/mod-abc
func (Topics) Actuation(moduleID string) string {
	return fmt.Sprintf("%s/actuation/%s", TopicPrefix, moduleID)
}

// SystemStatus returns the service status topic. The retained message on
// this topic reflects whether the core service is online.
//
// Example: greenhouse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// Report returns the topic a module publishes raw readings to. The core
// service subscribes here and records what arrives, as an alternative to
// the sensor-values endpoint. Kept separate from Telemetry so the service
// never re-ingests its own fan-out.
//
// Example: greenhouse/report/mod-abc/temperature
func (Topics) Report(moduleID, kind string) string {
	return fmt.Sprintf("%s/report/%s/%s", TopicPrefix, moduleID, kind)
}

// AllReports returns a pattern matching reports from all modules.
//
// Pattern: greenhouse/report/+/+
func (Topics) AllReports() string {
	return fmt.Sprintf("%s/report/+/+", TopicPrefix)
}
