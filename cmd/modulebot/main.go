// Module simulator for Greenhouse Core.
//
// modulebot behaves like greenhouse module firmware: it registers itself
// with the backend, polls its activation status, pushes sensor samples and
// requests actuation decisions on a timer. Readings drift in response to
// the decisions it receives, so a claimed and configured module visibly
// converges on its targets.
//
// Usage:
//
//	modulebot -server http://127.0.0.1:8080 -interval 5s
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantlogic/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantlogic/greenhouse-core/internal/module"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
)

const (
	requestTimeout = 10 * time.Second

	headerModuleMAC = "X-Module-MAC"
	headerModuleID  = "X-Module-ID"
)

// state is the simulated module: its identity on the wire and the current
// sensor readings. Readings are plain floats that drift each tick.
type state struct {
	MAC      string
	IP       string
	ModuleID string

	Temperature float64
	Humidity    float64
	Light       float64
}

// sample snapshots the current readings.
func (s *state) sample() module.Sample {
	return module.Sample{
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Light:       s.Light,
	}
}

// apply drifts the readings according to the last actuation decision.
// A signalled channel climbs towards its target; an idle channel decays.
// This is a crude greenhouse model, just enough to watch convergence.
func (s *state) apply(decision module.Actuation) {
	s.Temperature = drift(s.Temperature, decision.Temperature)
	s.Humidity = drift(s.Humidity, decision.Humidity)
	s.Light = drift(s.Light, decision.Light)
}

// drift moves a reading one step. Heating/humidifying/lighting raises the
// value; ambient losses lower it. Values never go below zero.
func drift(value float64, signal module.Signal) float64 {
	const (
		gain = 0.8
		loss = 0.3
	)

	if signal == module.SignalOn {
		return value + gain
	}
	if value-loss < 0 {
		return 0
	}
	return value - loss
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("modulebot", flag.ContinueOnError)
	server := flags.String("server", "http://127.0.0.1:8080", "backend base URL")
	mac := flags.String("mac", "", "module MAC address (default: first interface)")
	ip := flags.String("ip", "", "module IP address (default: outbound address)")
	interval := flags.Duration("interval", 5*time.Second, "tick interval")
	temperature := flags.Float64("temperature", 18.0, "initial temperature reading")
	humidity := flags.Float64("humidity", 40.0, "initial humidity reading")
	light := flags.Float64("light", 200.0, "initial light reading")
	logLevel := flags.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := logging.New(config.LoggingConfig{Level: *logLevel, Format: "text", Output: "stdout"}, version)

	st := &state{
		MAC:         *mac,
		IP:          *ip,
		Temperature: *temperature,
		Humidity:    *humidity,
		Light:       *light,
	}
	if st.MAC == "" {
		st.MAC = defaultMAC()
	}
	if st.IP == "" {
		st.IP = defaultIP()
	}

	bot := &bot{
		server: *server,
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
		state:  st,
	}

	log.Info("modulebot starting",
		"server", bot.server,
		"mac", st.MAC,
		"ip", st.IP,
		"interval", interval.String(),
	)

	if err := bot.connect(ctx); err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}
	log.Info("registered with backend", "module_id", st.ModuleID)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("modulebot stopped")
			return nil
		case <-ticker.C:
			bot.tick(ctx)
		}
	}
}

// bot drives one simulated module against the backend.
type bot struct {
	server string
	client *http.Client
	log    *logging.Logger
	state  *state
}

// tick runs one firmware cycle: report readings, ask for a decision, and
// drift the readings accordingly. Failures are logged and retried on the
// next tick; firmware never gives up on a flaky network.
func (b *bot) tick(ctx context.Context) {
	active, err := b.status(ctx)
	if err != nil {
		b.log.Warn("status poll failed", "error", err)
		return
	}
	if !active {
		b.log.Debug("module inactive, skipping cycle")
		return
	}

	if err := b.sendSensorValues(ctx); err != nil {
		b.log.Warn("sensor report failed", "error", err)
	}

	decision, err := b.adjust(ctx)
	if err != nil {
		b.log.Warn("adjust failed", "error", err)
		return
	}

	b.state.apply(*decision)
	b.log.Info("cycle complete",
		"temperature", fmt.Sprintf("%.1f", b.state.Temperature),
		"humidity", fmt.Sprintf("%.1f", b.state.Humidity),
		"light", fmt.Sprintf("%.1f", b.state.Light),
		"heat", decision.Temperature,
		"humidify", decision.Humidity,
		"illuminate", decision.Light,
	)
}

// connect registers the module and stores the assigned ID.
func (b *bot) connect(ctx context.Context) error {
	body := map[string]string{
		"mac_address": b.state.MAC,
		"ip_address":  b.state.IP,
	}

	var resp struct {
		ModuleID string `json:"module_id"`
		IsActive bool   `json:"is_active"`
		Exists   bool   `json:"exists"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/modules/connect", body, false, &resp); err != nil {
		return err
	}

	b.state.ModuleID = resp.ModuleID
	return nil
}

// status asks the backend whether this module should be running.
func (b *bot) status(ctx context.Context) (bool, error) {
	var resp struct {
		ModuleID  string `json:"module_id"`
		IsActive  bool   `json:"is_active"`
		IsClaimed bool   `json:"is_claimed"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/modules/status", nil, true, &resp); err != nil {
		return false, err
	}
	return resp.IsActive, nil
}

// sendSensorValues reports the current readings. The ingest endpoint takes
// lowercase channel names, unlike the adjust sample.
func (b *bot) sendSensorValues(ctx context.Context) error {
	body := map[string]float64{
		"temperature": b.state.Temperature,
		"humidity":    b.state.Humidity,
		"light":       b.state.Light,
	}
	path := "/api/modules/" + b.state.ModuleID + "/sensor-values"
	return b.do(ctx, http.MethodPut, path, body, true, nil)
}

// adjust submits the current sample and returns the actuation decision.
func (b *bot) adjust(ctx context.Context) (*module.Actuation, error) {
	var decision module.Actuation
	if err := b.do(ctx, http.MethodPost, "/adjust", b.state.sample(), true, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// do performs one HTTP request against the backend. Device identity headers
// are attached when asDevice is set. A non-2xx response is an error.
func (b *bot) do(ctx context.Context, method, path string, body any, asDevice bool, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.server+path, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if asDevice {
		req.Header.Set(headerModuleMAC, b.state.MAC)
		req.Header.Set(headerModuleID, b.state.ModuleID)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// defaultMAC returns the hardware address of the first interface that has
// one, formatted uppercase. Falls back to a fixed address when the host
// exposes none (containers, CI).
func defaultMAC() string {
	interfaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range interfaces {
			if len(iface.HardwareAddr) == 6 {
				mac := iface.HardwareAddr.String()
				return toUpperMAC(mac)
			}
		}
	}
	return "02:00:00:00:00:01"
}

// toUpperMAC uppercases the hex digits of a MAC address.
func toUpperMAC(mac string) string {
	b := []byte(mac)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// defaultIP discovers the host's outbound IP address. No packets are sent;
// dialling UDP just resolves the local endpoint.
func defaultIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
