package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
	"github.com/verdantlogic/greenhouse-core/internal/auth"
	"github.com/verdantlogic/greenhouse-core/internal/greenhouse"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

const testJWTSecret = "test-secret-0123456789-0123456789-0123456789"

const testSchema = `
CREATE TABLE users (
	id                     TEXT PRIMARY KEY,
	login                  TEXT NOT NULL UNIQUE,
	password_hash          TEXT NOT NULL,
	favorite_greenhouse_id TEXT,
	created_at             TEXT NOT NULL,
	updated_at             TEXT NOT NULL
) STRICT;

CREATE TABLE greenhouses (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	owner_id       TEXT NOT NULL REFERENCES users(id),
	main_module_id TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	UNIQUE (owner_id, name)
) STRICT;

CREATE TABLE modules (
	id                  TEXT PRIMARY KEY,
	mac_address         TEXT NOT NULL UNIQUE,
	ip_address          TEXT NOT NULL,
	name                TEXT,
	owner_id            TEXT REFERENCES users(id),
	greenhouse_id       TEXT REFERENCES greenhouses(id),
	target_temperature  REAL,
	target_humidity     REAL,
	target_lighting     REAL,
	is_active           INTEGER NOT NULL DEFAULT 0,
	last_temperature    REAL,
	last_temperature_at TEXT,
	last_humidity       REAL,
	last_humidity_at    TEXT,
	last_light          REAL,
	last_light_at       TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
) STRICT;

CREATE TABLE sensor_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	module_id   TEXT NOT NULL REFERENCES modules(id),
	kind        TEXT NOT NULL CHECK (kind IN ('temperature', 'humidity', 'light')),
	value       REAL NOT NULL,
	recorded_at TEXT NOT NULL
) STRICT;

CREATE TABLE audit_logs (
	id          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT,
	user_id     TEXT,
	source      TEXT NOT NULL,
	details     TEXT,
	created_at  TEXT NOT NULL
) STRICT;
`

// newTestServer builds a server over a fresh in-memory database and returns
// its router.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 60}},
		History:  config.HistoryConfig{WindowHours: 24},
		Logger:   logging.New(config.LoggingConfig{Level: "error"}, "test"),
		Modules:  module.NewSQLiteRepository(db),
		Sensors:  module.NewSQLiteHistoryRepository(db),

		Greenhouses: greenhouse.NewSQLiteRepository(db),
		Users:       auth.NewUserRepository(db),
		Audit:       audit.NewSQLiteRepository(db),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return srv.buildRouter()
}

// do performs a request against the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// registerUser creates an account and returns its bearer header value.
func registerUser(t *testing.T, h http.Handler, login string) map[string]string {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/auth/register",
		map[string]string{"login": login, "password": "garden-password"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", login, rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	decode(t, rec, &resp)
	return map[string]string{"Authorization": "Bearer " + resp.AccessToken}
}

// connectModule registers a module and returns its ID.
func connectModule(t *testing.T, h http.Handler, mac string) string {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/modules/connect",
		map[string]string{"mac_address": mac, "ip_address": "10.0.0.7"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("connect %s: status = %d, body = %s", mac, rec.Code, rec.Body.String())
	}

	var resp connectResponse
	decode(t, rec, &resp)
	return resp.ModuleID
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/auth/register",
		map[string]string{"login": "alice", "password": "garden-password"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Duplicate login
	rec = do(t, h, http.MethodPost, "/api/auth/register",
		map[string]string{"login": "alice", "password": "garden-password"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate register: status = %d, want 400", rec.Code)
	}

	// Short password
	rec = do(t, h, http.MethodPost, "/api/auth/register",
		map[string]string{"login": "bob", "password": "short"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password: status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/login",
		map[string]string{"login": "alice", "password": "garden-password"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	decode(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatal("login should return an access token")
	}

	// Wrong password and unknown login must be indistinguishable
	rec = do(t, h, http.MethodPost, "/api/auth/login",
		map[string]string{"login": "alice", "password": "wrong-password"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/auth/login",
		map[string]string{"login": "nobody", "password": "garden-password"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown login: status = %d, want 401", rec.Code)
	}

	// Token works on a protected route
	rec = do(t, h, http.MethodGet, "/api/user", nil,
		map[string]string{"Authorization": "Bearer " + resp.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/user: status = %d", rec.Code)
	}
	var user auth.User
	decode(t, rec, &user)
	if user.Login != "alice" {
		t.Errorf("Login = %q, want alice", user.Login)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/user", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/modules/available", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestModuleConnect(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/modules/connect",
		map[string]string{"mac_address": "AA:BB:CC:00:11:22", "ip_address": "10.0.0.7"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first connect: status = %d, want 201", rec.Code)
	}
	var first connectResponse
	decode(t, rec, &first)
	if first.Exists {
		t.Error("first connect should report exists = false")
	}
	if first.IsActive {
		t.Error("new module should be inactive")
	}

	// Reconnect with a new IP keeps the row
	rec = do(t, h, http.MethodPost, "/api/modules/connect",
		map[string]string{"mac_address": "AA:BB:CC:00:11:22", "ip_address": "10.0.0.99"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconnect: status = %d, want 200", rec.Code)
	}
	var second connectResponse
	decode(t, rec, &second)
	if !second.Exists {
		t.Error("reconnect should report exists = true")
	}
	if second.ModuleID != first.ModuleID {
		t.Errorf("reconnect module id = %q, want %q", second.ModuleID, first.ModuleID)
	}

	// Missing fields are rejected
	rec = do(t, h, http.MethodPost, "/api/modules/connect",
		map[string]string{"mac_address": "", "ip_address": "10.0.0.7"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty mac: status = %d, want 400", rec.Code)
	}
}

func TestModuleStatusEndpoint(t *testing.T) {
	h := newTestServer(t)
	id := connectModule(t, h, "AA:BB:CC:00:11:22")

	rec := do(t, h, http.MethodGet, "/api/modules/status", nil,
		map[string]string{"X-Module-MAC": "AA:BB:CC:00:11:22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	decode(t, rec, &resp)
	if resp["module_id"] != id {
		t.Errorf("module_id = %v, want %q", resp["module_id"], id)
	}
	if resp["is_claimed"] != false {
		t.Errorf("is_claimed = %v, want false", resp["is_claimed"])
	}

	rec = do(t, h, http.MethodGet, "/api/modules/status", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/modules/status", nil,
		map[string]string{"X-Module-MAC": "FF:FF:FF:FF:FF:FF"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown mac: status = %d, want 404", rec.Code)
	}
}

func TestClaimFlow(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")
	bob := registerUser(t, h, "bob")
	id := connectModule(t, h, "AA:BB:CC:00:11:22")

	// Module shows up as available
	rec := do(t, h, http.MethodGet, "/api/modules/available", nil, alice)
	var listing struct {
		Count int `json:"count"`
	}
	decode(t, rec, &listing)
	if listing.Count != 1 {
		t.Fatalf("available count = %d, want 1", listing.Count)
	}

	rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Second claim fails with a conflict, not a permissions error
	rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, bob)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("claim of claimed module: status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/modules/missing/claim", nil, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("claim of unknown module: status = %d, want 404", rec.Code)
	}

	// No longer available, listed under alice
	rec = do(t, h, http.MethodGet, "/api/modules/available", nil, alice)
	decode(t, rec, &listing)
	if listing.Count != 0 {
		t.Errorf("available count after claim = %d, want 0", listing.Count)
	}
	rec = do(t, h, http.MethodGet, "/api/modules/user", nil, alice)
	decode(t, rec, &listing)
	if listing.Count != 1 {
		t.Errorf("user module count = %d, want 1", listing.Count)
	}
}

func TestSettingsAndAdjust(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")
	const mac = "AA:BB:CC:00:11:22"
	id := connectModule(t, h, mac)

	rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/settings",
		map[string]float64{"target_temperature": 25}, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var settings moduleSettingsResponse
	decode(t, rec, &settings)
	if settings.TargetTemperature == nil || *settings.TargetTemperature != 25 {
		t.Fatalf("TargetTemperature = %v, want 25", settings.TargetTemperature)
	}
	if settings.TargetHumidity != nil {
		t.Errorf("TargetHumidity = %v, want nil (untouched)", *settings.TargetHumidity)
	}

	deviceHeaders := map[string]string{"X-Module-MAC": mac, "X-Module-ID": id}

	// Settings are readable by the owner and by the device itself.
	rec = do(t, h, http.MethodGet, "/api/modules/"+id+"/settings", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner settings read: status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/modules/"+id+"/settings", nil, deviceHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("device settings read: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &settings)
	if settings.TargetTemperature == nil || *settings.TargetTemperature != 25 {
		t.Errorf("device settings TargetTemperature = %v, want 25", settings.TargetTemperature)
	}
	rec = do(t, h, http.MethodGet, "/api/modules/"+id+"/settings", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous settings read: status = %d, want 401", rec.Code)
	}

	// Below target: heater on
	rec = do(t, h, http.MethodPost, "/adjust",
		map[string]float64{"Temperature": 20, "Humidity": 50, "Light": 100}, deviceHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decision module.Actuation
	decode(t, rec, &decision)
	if decision.Temperature != module.SignalOn {
		t.Errorf("Temperature signal = %q, want ON", decision.Temperature)
	}
	// No humidity or light targets are set
	if decision.Humidity != module.SignalOff || decision.Light != module.SignalOff {
		t.Errorf("unset targets should decide OFF, got %q/%q", decision.Humidity, decision.Light)
	}

	// At and above target: off
	for _, value := range []float64{25, 30} {
		rec = do(t, h, http.MethodPost, "/adjust",
			map[string]float64{"Temperature": value, "Humidity": 50, "Light": 100}, deviceHeaders)
		decode(t, rec, &decision)
		if decision.Temperature != module.SignalOff {
			t.Errorf("sample %v: Temperature signal = %q, want OFF", value, decision.Temperature)
		}
	}

	// A report missing any channel is rejected outright; an absent key must
	// never be scored as a zero reading against a set target.
	for name, body := range map[string]map[string]float64{
		"empty":               {},
		"temperature only":    {"Temperature": 20},
		"missing light":       {"Temperature": 20, "Humidity": 50},
		"missing temperature": {"Humidity": 50, "Light": 100},
	} {
		rec = do(t, h, http.MethodPost, "/adjust", body, deviceHeaders)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s adjust body: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestAdjustIdentity(t *testing.T) {
	h := newTestServer(t)
	id := connectModule(t, h, "AA:BB:CC:00:11:22")
	otherID := connectModule(t, h, "DD:EE:FF:33:44:55")

	sample := map[string]float64{"Temperature": 20, "Humidity": 50, "Light": 100}

	rec := do(t, h, http.MethodPost, "/adjust", sample, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no headers: status = %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/adjust", sample,
		map[string]string{"X-Module-MAC": "AA:BB:CC:00:11:22"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing id header: status = %d, want 401", rec.Code)
	}

	// Known MAC paired with another module's ID is rejected
	rec = do(t, h, http.MethodPost, "/adjust", sample,
		map[string]string{"X-Module-MAC": "AA:BB:CC:00:11:22", "X-Module-ID": otherID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("mismatched identity: status = %d, want 403", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/adjust", sample,
		map[string]string{"X-Module-MAC": "AA:BB:CC:00:11:22", "X-Module-ID": id})
	if rec.Code != http.StatusOK {
		t.Errorf("valid identity: status = %d, want 200", rec.Code)
	}
}

func TestSensorValuesAndHistory(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")
	const mac = "AA:BB:CC:00:11:22"
	id := connectModule(t, h, mac)

	rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d", rec.Code)
	}

	deviceHeaders := map[string]string{"X-Module-MAC": mac}
	for i := 0; i < 3; i++ {
		rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/sensor-values",
			map[string]float64{"temperature": 20 + float64(i), "humidity": 50, "light": 100}, deviceHeaders)
		if rec.Code != http.StatusOK {
			t.Fatalf("sensor-values: status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}

	// Absent channels are skipped, not recorded as zero
	rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/sensor-values",
		map[string]float64{"humidity": 55}, deviceHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("partial sensor-values: status = %d", rec.Code)
	}

	// Wrong MAC for this module ID is rejected
	rec = do(t, h, http.MethodPut, "/api/modules/"+id+"/sensor-values",
		map[string]float64{"temperature": 20, "humidity": 50, "light": 100},
		map[string]string{"X-Module-MAC": "FF:FF:FF:FF:FF:FF"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong mac: status = %d, want 403", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/modules/"+id+"/history-24h", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var series module.Series
	decode(t, rec, &series)
	if len(series.Temperature) != 3 {
		t.Errorf("temperature entries = %d, want 3", len(series.Temperature))
	}
	if len(series.Humidity) != 4 || len(series.Light) != 3 {
		t.Errorf("humidity/light entries = %d/%d, want 4/3", len(series.Humidity), len(series.Light))
	}
	for i := 1; i < len(series.Temperature); i++ {
		if series.Temperature[i].RecordedAt.Before(series.Temperature[i-1].RecordedAt) {
			t.Error("history should be ordered oldest first")
		}
	}

	// Last-observed values surface on the module itself
	rec = do(t, h, http.MethodGet, "/api/modules/user", nil, alice)
	var listing struct {
		Modules []module.Module `json:"modules"`
	}
	decode(t, rec, &listing)
	if len(listing.Modules) != 1 {
		t.Fatalf("user modules = %d, want 1", len(listing.Modules))
	}
	if listing.Modules[0].LastTemperature == nil || *listing.Modules[0].LastTemperature != 22 {
		t.Errorf("LastTemperature = %v, want 22", listing.Modules[0].LastTemperature)
	}

	// History of another user's module is a 404
	bob := registerUser(t, h, "bob")
	rec = do(t, h, http.MethodGet, "/api/modules/"+id+"/history-24h", nil, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign history: status = %d, want 404", rec.Code)
	}
}

func TestGreenhouseLifecycle(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")

	var ids []string
	for i := 0; i < 3; i++ {
		id := connectModule(t, h, fmt.Sprintf("AA:BB:CC:00:11:%02d", i))
		rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("claim %d: status = %d", i, rec.Code)
		}
		ids = append(ids, id)
	}

	// Main module's target is copied onto the secondaries as they join
	rec := do(t, h, http.MethodPut, "/api/modules/"+ids[0]+"/settings",
		map[string]float64{"target_temperature": 22}, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/greenhouses", map[string]any{
		"greenhouse_name":      "tomatoes",
		"main_module_id":       ids[0],
		"secondary_module_ids": ids[1:],
	}, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create greenhouse: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var gh greenhouse.Greenhouse
	decode(t, rec, &gh)
	if gh.MainModuleID != ids[0] {
		t.Errorf("MainModuleID = %q, want %q", gh.MainModuleID, ids[0])
	}

	rec = do(t, h, http.MethodGet, "/api/greenhouses/"+gh.ID, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("get greenhouse: status = %d", rec.Code)
	}
	var detail struct {
		Greenhouse greenhouse.Greenhouse `json:"greenhouse"`
		Modules    []module.Module       `json:"modules"`
	}
	decode(t, rec, &detail)
	if len(detail.Modules) != 3 {
		t.Fatalf("member count = %d, want 3", len(detail.Modules))
	}
	for _, m := range detail.Modules {
		if m.TargetTemperature == nil || *m.TargetTemperature != 22 {
			t.Errorf("module %s TargetTemperature = %v, want 22 copied from main", m.ID, m.TargetTemperature)
		}
	}

	// Duplicate name for the same owner
	rec = do(t, h, http.MethodPost, "/api/greenhouses", map[string]any{
		"greenhouse_name": "tomatoes",
		"main_module_id":  ids[1],
	}, alice)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate name: status = %d, want 400", rec.Code)
	}

	// Promote a new main
	rec = do(t, h, http.MethodPut, "/api/greenhouses/"+gh.ID+"/main-module",
		map[string]string{"main_module_id": ids[1]}, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("set main: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &gh)
	if gh.MainModuleID != ids[1] {
		t.Errorf("MainModuleID after promote = %q, want %q", gh.MainModuleID, ids[1])
	}

	// Other users cannot see or delete it
	bob := registerUser(t, h, "bob")
	rec = do(t, h, http.MethodGet, "/api/greenhouses/"+gh.ID, nil, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get: status = %d, want 404", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/greenhouses/"+gh.ID, nil, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete: status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/greenhouses/"+gh.ID, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	// Members are ungrouped but still owned
	rec = do(t, h, http.MethodGet, "/api/modules/user", nil, alice)
	var listing struct {
		Modules []module.Module `json:"modules"`
	}
	decode(t, rec, &listing)
	for _, m := range listing.Modules {
		if m.GreenhouseID != nil {
			t.Errorf("module %s still grouped after delete", m.ID)
		}
	}
}

func TestUnclaimWithdrawsFromGreenhouse(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")

	var ids []string
	for i := 0; i < 2; i++ {
		id := connectModule(t, h, fmt.Sprintf("AA:BB:CC:00:11:%02d", i))
		rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("claim %d: status = %d", i, rec.Code)
		}
		ids = append(ids, id)
	}

	rec := do(t, h, http.MethodPost, "/api/greenhouses", map[string]any{
		"greenhouse_name":      "peppers",
		"main_module_id":       ids[0],
		"secondary_module_ids": []string{ids[1]},
	}, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create greenhouse: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var gh greenhouse.Greenhouse
	decode(t, rec, &gh)

	// Unclaiming the main withdraws it first; the remaining member is promoted
	rec = do(t, h, http.MethodPut, "/api/modules/"+ids[0]+"/unclaim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("unclaim: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/greenhouses/"+gh.ID, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("get greenhouse after unclaim: status = %d", rec.Code)
	}
	var detail struct {
		Greenhouse greenhouse.Greenhouse `json:"greenhouse"`
		Modules    []module.Module       `json:"modules"`
	}
	decode(t, rec, &detail)
	if detail.Greenhouse.MainModuleID != ids[1] {
		t.Errorf("MainModuleID = %q, want promoted %q", detail.Greenhouse.MainModuleID, ids[1])
	}
	if len(detail.Modules) != 1 {
		t.Errorf("member count = %d, want 1", len(detail.Modules))
	}

	// The released module is unowned, inactive and available again
	rec = do(t, h, http.MethodGet, "/api/modules/available", nil, alice)
	var listing struct {
		Modules []module.Module `json:"modules"`
	}
	decode(t, rec, &listing)
	if len(listing.Modules) != 1 || listing.Modules[0].ID != ids[0] {
		t.Fatalf("available = %+v, want just the released module", listing.Modules)
	}
	if listing.Modules[0].IsActive {
		t.Error("released module should be deactivated")
	}

	// Unclaiming someone else's module reads as not found
	bob := registerUser(t, h, "bob")
	rec = do(t, h, http.MethodPut, "/api/modules/"+ids[1]+"/unclaim", nil, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign unclaim: status = %d, want 404", rec.Code)
	}
}

func TestFavoriteGreenhouse(t *testing.T) {
	h := newTestServer(t)
	alice := registerUser(t, h, "alice")
	bob := registerUser(t, h, "bob")

	id := connectModule(t, h, "AA:BB:CC:00:11:22")
	rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/greenhouses", map[string]any{
		"greenhouse_name": "herbs",
		"main_module_id":  id,
	}, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create greenhouse: status = %d", rec.Code)
	}
	var gh greenhouse.Greenhouse
	decode(t, rec, &gh)

	rec = do(t, h, http.MethodPut, "/api/user/favorite-greenhouse",
		map[string]string{"greenhouse_id": gh.ID}, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("set favourite: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/user/favorite-greenhouse", nil, alice)
	var fav struct {
		Greenhouse *greenhouse.Greenhouse `json:"greenhouse"`
		Modules    []*module.Module       `json:"modules"`
	}
	decode(t, rec, &fav)
	if fav.Greenhouse == nil || fav.Greenhouse.ID != gh.ID {
		t.Fatalf("favourite greenhouse = %+v, want %q", fav.Greenhouse, gh.ID)
	}
	if len(fav.Modules) != 1 || fav.Modules[0].ID != id {
		t.Errorf("favourite modules = %+v, want the main module", fav.Modules)
	}

	// Another user cannot point at alice's greenhouse
	rec = do(t, h, http.MethodPut, "/api/user/favorite-greenhouse",
		map[string]string{"greenhouse_id": gh.ID}, bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign favourite: status = %d, want 404", rec.Code)
	}

	// Deleting the greenhouse clears the pointer
	rec = do(t, h, http.MethodDelete, "/api/greenhouses/"+gh.ID, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/user/favorite-greenhouse", nil, alice)
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Errorf("favourite after delete = %s, want null", body)
	}

	// Clearing explicitly
	rec = do(t, h, http.MethodPut, "/api/user/favorite-greenhouse",
		map[string]any{"greenhouse_id": nil}, alice)
	if rec.Code != http.StatusOK {
		t.Errorf("clear favourite: status = %d", rec.Code)
	}
}

func TestUserActivity(t *testing.T) {
	h := newTestServer(t)

	alice := registerUser(t, h, "alice")
	bob := registerUser(t, h, "bob")
	id := connectModule(t, h, "AA:BB:CC:DD:EE:30")

	rec := do(t, h, http.MethodPut, "/api/modules/"+id+"/claim", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/user/activity", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("activity: status = %d", rec.Code)
	}

	var result audit.ListResult
	decode(t, rec, &result)
	// Registration plus the claim.
	if result.Total != 2 {
		t.Fatalf("activity total = %d, want 2", result.Total)
	}
	var found bool
	for _, entry := range result.Logs {
		if entry.Action == audit.ActionClaim && entry.EntityID == id {
			found = true
		}
	}
	if !found {
		t.Error("claim entry missing from activity trail")
	}

	// Bob sees only his own trail.
	rec = do(t, h, http.MethodGet, "/api/user/activity", nil, bob)
	var bobResult audit.ListResult
	decode(t, rec, &bobResult)
	if bobResult.Total != 1 {
		t.Errorf("bob activity total = %d, want 1", bobResult.Total)
	}

	// Action filter narrows the trail.
	rec = do(t, h, http.MethodGet, "/api/user/activity?action="+audit.ActionClaim, nil, alice)
	var claims audit.ListResult
	decode(t, rec, &claims)
	if claims.Total != 1 {
		t.Errorf("filtered total = %d, want 1", claims.Total)
	}
}
