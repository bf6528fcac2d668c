package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/verdantlogic/greenhouse-core/internal/api"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// ingestTimeout bounds how long one broker message may hold the store.
const ingestTimeout = 5 * time.Second

// telemetryIngest records readings that modules publish straight to the
// broker, as an alternative to the sensor-values endpoint. Both paths land
// in the same history store and refresh the same last-observed columns.
type telemetryIngest struct {
	history module.HistoryRepository
	mirror  api.TelemetryMirror
	log     *logging.Logger
}

// handleMessage parses one report message and records it. The topic names
// the module and channel, the payload is the bare numeric value.
func (t *telemetryIngest) handleMessage(topic string, payload []byte) error {
	moduleID, kind, err := splitReportTopic(topic)
	if err != nil {
		return err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return fmt.Errorf("parsing reading on %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	at := time.Now().UTC()
	if err := t.history.Record(ctx, moduleID, kind, value, at); err != nil {
		return fmt.Errorf("recording reading on %s: %w", topic, err)
	}
	if t.mirror != nil {
		t.mirror.WriteReading(moduleID, string(kind), value, at)
	}

	t.log.Debug("reading ingested from broker",
		"module_id", moduleID, "kind", kind, "value", value)
	return nil
}

// splitReportTopic extracts the module ID and channel from a
// greenhouse/report/{module_id}/{kind} topic. The channel is validated by
// the history store, not here.
func splitReportTopic(topic string) (string, module.Kind, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != mqtt.TopicPrefix || parts[1] != "report" ||
		parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("unexpected report topic %q", topic)
	}
	return parts[2], module.Kind(parts[3]), nil
}
