package api

import (
	"encoding/json"
	"net/http"

	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// adjustRequest is the sample a module reports for a decision. All three
// channels are mandatory: a missing key is a malformed report, never a
// zero reading.
type adjustRequest struct {
	Temperature *float64 `json:"Temperature"`
	Humidity    *float64 `json:"Humidity"`
	Light       *float64 `json:"Light"`
}

// handleAdjust compares a module's sample against its stored targets and
// answers with an ON/OFF signal per channel. The module identifies itself
// with both identity headers; the pair must resolve to exactly one
// registered row.
//
// The decision is independent per channel: a channel is ON only when its
// target is set and the sample is strictly below it. An unset target never
// actuates.
func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	m := s.resolveDevice(w, r, r.Header.Get(headerModuleID))
	if m == nil {
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Temperature == nil || req.Humidity == nil || req.Light == nil {
		writeBadRequest(w, "Temperature, Humidity and Light are all required")
		return
	}

	sample := module.Sample{
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Light:       *req.Light,
	}

	decision := module.Decide(m.Targets(), sample)

	s.publishActuation(m.ID, decision)

	writeJSON(w, http.StatusOK, decision)
}

// publishActuation mirrors a decision to the MQTT broker so dashboards and
// recorders can observe actuation without polling. Best effort only; the
// HTTP response to the module is the authoritative channel.
func (s *Server) publishActuation(moduleID string, decision module.Actuation) {
	if s.mqtt == nil {
		return
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return
	}

	topic := mqtt.Topics{}.Actuation(moduleID)
	if err := s.mqtt.Publish(topic, payload, 1, false); err != nil {
		s.logger.Debug("actuation publish failed", "error", err, "topic", topic)
	}
}
