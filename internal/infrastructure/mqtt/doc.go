// Package mqtt provides MQTT client connectivity for Greenhouse Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Greenhouse Core uses MQTT two ways, both optional. Outbound it is a
// fan-out bus: accepted sensor readings and actuation decisions are
// mirrored onto telemetry and actuation topics so dashboards and recorders
// can observe the system without polling the HTTP API. Inbound the service
// subscribes to the report hierarchy, where modules may publish raw
// readings instead of calling the sensor-values endpoint. Nothing in the
// HTTP request path depends on the broker being up.
//
//	Modules → greenhouse/report/...    → Greenhouse Core
//	Greenhouse Core → greenhouse/telemetry/... → Dashboards / Recorders
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Watch all module reports
//	err = client.Subscribe(mqtt.Topics{}.AllReports(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a reading
//	topic := mqtt.Topics{}.Telemetry("mod-abc", "temperature")
//	client.Publish(topic, []byte(`{"value":21.5}`), 1, false)
package mqtt
