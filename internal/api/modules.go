package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// connectRequest is the request body for POST /api/modules/connect.
type connectRequest struct {
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
}

// connectResponse is the response body for POST /api/modules/connect.
type connectResponse struct {
	ModuleID string `json:"module_id"`
	IsActive bool   `json:"is_active"`
	Exists   bool   `json:"exists"`
}

// handleConnectModule registers a module or refreshes its IP address.
// The MAC address is the natural key: reconnecting hardware keeps its row,
// its owner and its grouping. Returns 201 for a first registration and 200
// for a reconnect.
func (s *Server) handleConnectModule(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	m, existed, err := s.modules.RegisterOrUpdate(r.Context(), req.MACAddress, req.IPAddress)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}

	writeJSON(w, status, connectResponse{
		ModuleID: m.ID,
		IsActive: m.IsActive,
		Exists:   existed,
	})
}

// handleModuleStatus reports whether a module should be running. Firmware
// polls this with its MAC header to learn its ID, activation and claim state.
func (s *Server) handleModuleStatus(w http.ResponseWriter, r *http.Request) {
	mac := r.Header.Get(headerModuleMAC)
	if mac == "" {
		writeUnauthorized(w, "module identity headers required")
		return
	}

	m, err := s.modules.GetByMAC(r.Context(), mac)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"module_id":  m.ID,
		"is_active":  m.IsActive,
		"is_claimed": m.IsClaimed(),
	})
}

// handleListAvailableModules returns all unclaimed modules.
func (s *Server) handleListAvailableModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.modules.ListAvailable(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

// handleListUserModules returns the caller's claimed modules.
func (s *Server) handleListUserModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.modules.ListByOwner(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

// handleClaimModule takes ownership of an unclaimed module.
func (s *Server) handleClaimModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.modules.Claim(r.Context(), id, userID(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}

	m, err := s.modules.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionClaim, "module", id, map[string]any{"mac": m.MACAddress})

	writeJSON(w, http.StatusOK, m)
}

// handleUnclaimModule releases ownership of a module. Withdrawal from the
// greenhouse (with succession or dissolution) and the ownership change
// commit in one transaction, so a failure can never leave a degrouped
// module still claimed.
func (s *Server) handleUnclaimModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uid := userID(r)

	m, err := s.modules.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.greenhouses.Unclaim(r.Context(), id, uid); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), uid, audit.ActionUnclaim, "module", id, map[string]any{"mac": m.MACAddress})

	writeJSON(w, http.StatusOK, map[string]any{"module_id": id, "is_claimed": false, "is_active": false})
}

// moduleSettingsResponse is the settings view of a module.
type moduleSettingsResponse struct {
	ModuleID          string   `json:"module_id"`
	ModuleName        *string  `json:"module_name"`
	TargetTemperature *float64 `json:"target_temperature"`
	TargetHumidity    *float64 `json:"target_humidity"`
	TargetLighting    *float64 `json:"target_lighting"`
	IsActive          bool     `json:"is_active"`
}

// handleGetModuleSettings returns the module settings. Both the module
// firmware and the owning user read this view: a request carrying identity
// headers is authenticated as the device, anything else as the owner.
func (s *Server) handleGetModuleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(headerModuleMAC) != "" {
		m := s.resolveDevice(w, r, chi.URLParam(r, "id"))
		if m == nil {
			return
		}
		writeJSON(w, http.StatusOK, settingsView(m))
		return
	}

	s.authMiddleware(http.HandlerFunc(s.handleGetModuleSettingsAsOwner)).ServeHTTP(w, r)
}

func (s *Server) handleGetModuleSettingsAsOwner(w http.ResponseWriter, r *http.Request) {
	m, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, settingsView(m))
}

// handleUpdateModuleSettings partially updates target values. Fields absent
// from the body are left untouched; targets cannot be cleared back to null
// over this endpoint.
func (s *Server) handleUpdateModuleSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var settings module.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.modules.UpdateSettings(r.Context(), id, userID(r), settings); err != nil {
		s.writeDomainError(w, err)
		return
	}

	m, err := s.modules.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionSettings, "module", id, nil)

	writeJSON(w, http.StatusOK, settingsView(m))
}

// handleSetModuleActive switches a module's actuation on or off.
func (s *Server) handleSetModuleActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.modules.SetActive(r.Context(), id, userID(r), req.IsActive); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionActivate, "module", id, map[string]any{"is_active": req.IsActive})

	writeJSON(w, http.StatusOK, map[string]any{"module_id": id, "is_active": req.IsActive})
}

// handleRenameModule sets a module's display name.
func (s *Server) handleRenameModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		ModuleName string `json:"module_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.modules.Rename(r.Context(), id, userID(r), req.ModuleName); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionRename, "module", id, map[string]any{"name": req.ModuleName})

	writeJSON(w, http.StatusOK, map[string]any{"module_id": id, "module_name": req.ModuleName})
}

// sensorValuesRequest carries a batch of readings from a module. Every
// channel is optional; absent channels are simply not recorded this cycle.
type sensorValuesRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
}

// handleSensorValues accepts a batch of readings from a module. The present
// channels are recorded in the history store in one transaction, which also
// refreshes the module's last-observed columns. Accepted readings fan out to
// the MQTT broker and the time-series mirror when those are configured.
func (s *Server) handleSensorValues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m := s.resolveDevice(w, r, id)
	if m == nil {
		return
	}

	var req sensorValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var readings []module.Reading
	for _, channel := range []struct {
		kind  module.Kind
		value *float64
	}{
		{module.KindTemperature, req.Temperature},
		{module.KindHumidity, req.Humidity},
		{module.KindLight, req.Light},
	} {
		if channel.value != nil {
			readings = append(readings, module.Reading{Kind: channel.kind, Value: *channel.value})
		}
	}

	// The whole report commits or none of it does.
	now := time.Now().UTC()
	if err := s.sensors.RecordBatch(r.Context(), m.ID, readings, now); err != nil {
		s.writeDomainError(w, err)
		return
	}
	for _, reading := range readings {
		s.fanOutReading(m.ID, reading.Kind, reading.Value, now)
	}

	writeJSON(w, http.StatusOK, map[string]any{"module_id": m.ID, "recorded_at": now.Format(time.RFC3339)})
}

// handleModuleHistory returns the recent sensor history for a module,
// grouped by channel and ordered oldest first.
func (s *Server) handleModuleHistory(w http.ResponseWriter, r *http.Request) {
	m, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().Add(-s.window)
	series, err := s.sensors.QueryWindow(r.Context(), m.ID, since)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// ownedModule loads the module from the path and verifies the caller owns
// it. Missing and foreign modules produce the same 404. On failure the
// response has already been written.
func (s *Server) ownedModule(w http.ResponseWriter, r *http.Request) (*module.Module, bool) {
	id := chi.URLParam(r, "id")

	m, err := s.modules.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	if m.OwnerID == nil || *m.OwnerID != userID(r) {
		writeNotFound(w, module.ErrNotOwned.Error())
		return nil, false
	}

	return m, true
}

// fanOutReading publishes an accepted reading to the optional MQTT broker
// and time-series mirror. Failures are logged, never surfaced: SQLite has
// already accepted the reading.
func (s *Server) fanOutReading(moduleID string, kind module.Kind, value float64, at time.Time) {
	if s.mirror != nil {
		s.mirror.WriteReading(moduleID, string(kind), value, at)
	}

	if s.mqtt == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"module_id": moduleID,
		"kind":      kind,
		"value":     value,
		"time":      at.Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	topic := mqtt.Topics{}.Telemetry(moduleID, string(kind))
	if err := s.mqtt.Publish(topic, payload, 1, false); err != nil {
		s.logger.Debug("telemetry publish failed", "error", err, "topic", topic)
	}
}

// settingsView projects a module onto its settings response.
func settingsView(m *module.Module) moduleSettingsResponse {
	return moduleSettingsResponse{
		ModuleID:          m.ID,
		ModuleName:        m.Name,
		TargetTemperature: m.TargetTemperature,
		TargetHumidity:    m.TargetHumidity,
		TargetLighting:    m.TargetLighting,
		IsActive:          m.IsActive,
	}
}
