package module

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for module persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// RegisterOrUpdate records a device announcing itself. The MAC address
	// is the natural key: an unknown MAC creates a new unclaimed module,
	// a known MAC refreshes its IP address and touches nothing else.
	// The returned bool reports whether the module already existed.
	// Returns ErrInvalidInput if mac or ip is empty.
	RegisterOrUpdate(ctx context.Context, mac, ip string) (*Module, bool, error)

	// GetByID retrieves a module by its unique identifier.
	// Returns ErrNotFound if the module does not exist.
	GetByID(ctx context.Context, id string) (*Module, error)

	// GetByMAC retrieves a module by its MAC address.
	// Returns ErrNotFound if no module has registered with that MAC.
	GetByMAC(ctx context.Context, mac string) (*Module, error)

	// GetByMACAndID retrieves the module matching both identifiers.
	// Returns ErrNotFound unless exactly that pairing exists; callers use
	// this to verify a device's asserted identity before acting on it.
	GetByMACAndID(ctx context.Context, mac, id string) (*Module, error)

	// ListAvailable retrieves all unclaimed modules.
	ListAvailable(ctx context.Context) ([]Module, error)

	// ListByOwner retrieves all modules claimed by a user.
	ListByOwner(ctx context.Context, ownerID string) ([]Module, error)

	// ListByGreenhouse retrieves all modules grouped into a greenhouse.
	ListByGreenhouse(ctx context.Context, greenhouseID string) ([]Module, error)

	// Claim assigns an unclaimed module to a user. The assignment is a
	// compare-and-set against the unclaimed state: of any number of
	// concurrent claims exactly one succeeds.
	// Returns ErrNotFound if the module does not exist and
	// ErrAlreadyClaimed if it has an owner.
	//
	// The reverse operation must commit together with greenhouse
	// withdrawal and lives on the greenhouse repository as Unclaim.
	Claim(ctx context.Context, id, userID string) error

	// UpdateSettings applies a partial setpoint update. Nil fields in
	// settings are left untouched.
	// Returns ErrNotOwned unless the module exists and userID owns it.
	UpdateSettings(ctx context.Context, id, userID string, settings Settings) error

	// SetActive toggles regulation on or off.
	// Returns ErrNotOwned unless the module exists and userID owns it.
	SetActive(ctx context.Context, id, userID string, active bool) error

	// Rename sets the user-assigned module label.
	// Returns ErrNotOwned unless the module exists and userID owns it.
	Rename(ctx context.Context, id, userID, name string) error
}

// moduleColumns is the canonical SELECT column list for module queries.
const moduleColumns = `id, mac_address, ip_address, name, owner_id, greenhouse_id,
	target_temperature, target_humidity, target_lighting, is_active,
	last_temperature, last_temperature_at, last_humidity, last_humidity_at,
	last_light, last_light_at, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RegisterOrUpdate records a device announcing itself.
func (r *SQLiteRepository) RegisterOrUpdate(ctx context.Context, mac, ip string) (*Module, bool, error) {
	mac = strings.TrimSpace(mac)
	ip = strings.TrimSpace(ip)
	if mac == "" {
		return nil, false, fmt.Errorf("%w: mac address is required", ErrInvalidInput)
	}
	if ip == "" {
		return nil, false, fmt.Errorf("%w: ip address is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	// Known MAC: refresh the IP and leave ownership, grouping and targets
	// exactly as they are.
	result, err := r.db.ExecContext(ctx,
		"UPDATE modules SET ip_address = ?, updated_at = ? WHERE mac_address = ?",
		ip, now.Format(time.RFC3339), mac,
	)
	if err != nil {
		return nil, false, fmt.Errorf("updating module registration: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		m, err := r.GetByMAC(ctx, mac)
		if err != nil {
			return nil, false, err
		}
		return m, true, nil
	}

	// Unknown MAC: create an unclaimed, ungrouped, inactive module.
	m := &Module{
		ID:         uuid.NewString(),
		MACAddress: mac,
		IPAddress:  ip,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO modules (id, mac_address, ip_address, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		m.ID, m.MACAddress, m.IPAddress,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		// A concurrent registration of the same MAC can win the insert
		// race; fall back to reading the row it created.
		if isUniqueConstraintError(err) {
			existing, getErr := r.GetByMAC(ctx, mac)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("inserting module: %w", err)
	}

	return m, false, nil
}

// GetByID retrieves a module by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Module, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE id = ?", id)
	m, err := scanModule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module by id: %w", err)
	}
	return m, nil
}

// GetByMAC retrieves a module by its MAC address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Module, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE mac_address = ?", strings.TrimSpace(mac))
	m, err := scanModule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module by mac: %w", err)
	}
	return m, nil
}

// GetByMACAndID retrieves the module matching both identifiers.
func (r *SQLiteRepository) GetByMACAndID(ctx context.Context, mac, id string) (*Module, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE mac_address = ? AND id = ?",
		strings.TrimSpace(mac), id)
	m, err := scanModule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module by mac and id: %w", err)
	}
	return m, nil
}

// ListAvailable retrieves all unclaimed modules.
func (r *SQLiteRepository) ListAvailable(ctx context.Context) ([]Module, error) {
	return r.queryModules(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE owner_id IS NULL ORDER BY created_at")
}

// ListByOwner retrieves all modules claimed by a user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Module, error) {
	return r.queryModules(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE owner_id = ? ORDER BY created_at", ownerID)
}

// ListByGreenhouse retrieves all modules grouped into a greenhouse.
func (r *SQLiteRepository) ListByGreenhouse(ctx context.Context, greenhouseID string) ([]Module, error) {
	return r.queryModules(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE greenhouse_id = ? ORDER BY id", greenhouseID)
}

// Claim assigns an unclaimed module to a user.
func (r *SQLiteRepository) Claim(ctx context.Context, id, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	// Compare-and-set against the unclaimed state. Concurrent claims race
	// on this single UPDATE; the loser matches zero rows.
	result, err := r.db.ExecContext(ctx,
		"UPDATE modules SET owner_id = ?, updated_at = ? WHERE id = ? AND owner_id IS NULL",
		userID, now, id,
	)
	if err != nil {
		return fmt.Errorf("claiming module: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Lost the race or the module never existed; distinguish for the caller.
	var owner sql.NullString
	err = r.db.QueryRowContext(ctx, "SELECT owner_id FROM modules WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying module owner: %w", err)
	}
	return ErrAlreadyClaimed
}

// UpdateSettings applies a partial setpoint update.
func (r *SQLiteRepository) UpdateSettings(ctx context.Context, id, userID string, settings Settings) error {
	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	if settings.TargetTemperature != nil {
		set = append(set, "target_temperature = ?")
		args = append(args, *settings.TargetTemperature)
	}
	if settings.TargetHumidity != nil {
		set = append(set, "target_humidity = ?")
		args = append(args, *settings.TargetHumidity)
	}
	if settings.TargetLighting != nil {
		set = append(set, "target_lighting = ?")
		args = append(args, *settings.TargetLighting)
	}
	args = append(args, id, userID)

	query := "UPDATE modules SET " + strings.Join(set, ", ") + " WHERE id = ? AND owner_id = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating module settings: %w", err)
	}
	return ownedRowsAffected(result)
}

// SetActive toggles regulation on or off.
func (r *SQLiteRepository) SetActive(ctx context.Context, id, userID string, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE modules SET is_active = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		boolToInt(active), now, id, userID,
	)
	if err != nil {
		return fmt.Errorf("updating module active state: %w", err)
	}
	return ownedRowsAffected(result)
}

// Rename sets the user-assigned module label.
func (r *SQLiteRepository) Rename(ctx context.Context, id, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: module name is required", ErrInvalidInput)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE modules SET name = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		name, now, id, userID,
	)
	if err != nil {
		return fmt.Errorf("renaming module: %w", err)
	}
	return ownedRowsAffected(result)
}

// queryModules executes a query and returns a slice of modules.
func (r *SQLiteRepository) queryModules(ctx context.Context, query string, args ...any) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		modules = append(modules, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}
	return modules, nil
}

// ownedRowsAffected maps a zero-row owner-conditioned UPDATE to ErrNotOwned.
// The caller cannot tell a missing module from a foreign one, which is the
// point: the two cases surface identically.
func ownedRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotOwned
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanModule scans a row or rows result into a Module.
func scanModule(scanner rowScanner) (*Module, error) {
	var m Module
	var name, ownerID, greenhouseID sql.NullString
	var targetTemp, targetHum, targetLight sql.NullFloat64
	var lastTemp, lastHum, lastLight sql.NullFloat64
	var lastTempAt, lastHumAt, lastLightAt sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&m.ID,
		&m.MACAddress,
		&m.IPAddress,
		&name,
		&ownerID,
		&greenhouseID,
		&targetTemp,
		&targetHum,
		&targetLight,
		&isActive,
		&lastTemp,
		&lastTempAt,
		&lastHum,
		&lastHumAt,
		&lastLight,
		&lastLightAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.IsActive = isActive != 0
	m.Name = nullStringPtr(name)
	m.OwnerID = nullStringPtr(ownerID)
	m.GreenhouseID = nullStringPtr(greenhouseID)
	m.TargetTemperature = nullFloatPtr(targetTemp)
	m.TargetHumidity = nullFloatPtr(targetHum)
	m.TargetLighting = nullFloatPtr(targetLight)
	m.LastTemperature = nullFloatPtr(lastTemp)
	m.LastHumidity = nullFloatPtr(lastHum)
	m.LastLight = nullFloatPtr(lastLight)
	m.LastTemperatureAt = nullTimePtr(lastTempAt)
	m.LastHumidityAt = nullTimePtr(lastHumAt)
	m.LastLightAt = nullTimePtr(lastLightAt)

	var parseErr error
	m.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	m.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &m, nil
}

// nullStringPtr converts a sql.NullString to an optional string pointer.
func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// nullFloatPtr converts a sql.NullFloat64 to an optional float pointer.
func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// nullTimePtr parses an optional RFC3339 column into a time pointer.
func nullTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
