package greenhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for greenhouses.
//
// Every multi-write operation runs inside a single SQLite transaction.
// Combined with the store's single-writer connection this serialises
// conflicting operations on the same greenhouse, so a promotion and a
// withdrawal can never interleave.
type Repository interface {
	// Create builds a greenhouse from a main module and zero or more
	// secondaries, all owned by ownerID and not yet grouped. The main
	// module's three targets are copied verbatim onto every secondary,
	// unset targets included.
	//
	// Validation order: name must be non-empty, then unique for the
	// owner, then the main module is checked, then each secondary.
	// Returns ErrInvalidInput naming the first offender, or ErrNameTaken.
	Create(ctx context.Context, ownerID, name, mainModuleID string, secondaryModuleIDs []string) (*Greenhouse, error)

	// GetByID retrieves a greenhouse owned by ownerID.
	// Returns ErrNotFound if it does not exist or belongs to someone else.
	GetByID(ctx context.Context, id, ownerID string) (*Greenhouse, error)

	// ListByOwner retrieves all greenhouses created by a user.
	ListByOwner(ctx context.Context, ownerID string) ([]Greenhouse, error)

	// SetMainModule promotes an existing member to main and pushes its
	// targets onto every other member in the same transaction.
	// Returns ErrNotFound for a missing or foreign greenhouse and
	// ErrNotAMember if the candidate is not grouped into it.
	SetMainModule(ctx context.Context, id, ownerID, newMainModuleID string) error

	// Withdraw removes a module from whatever greenhouse it belongs to.
	// Withdrawing a non-main member only clears its membership. When the
	// main module leaves, the remaining member with the lowest module ID
	// is promoted without touching its targets; if none remain the
	// greenhouse dissolves and any favourite pointers to it are cleared.
	// Withdrawing an ungrouped or unknown module is a no-op.
	Withdraw(ctx context.Context, moduleID string) error

	// Unclaim releases a module from its owner. A grouped module is
	// withdrawn first, so succession or dissolution commits together with
	// the ownership change: either the whole sequence lands or none of it
	// does. The released module is forced inactive.
	// Returns ErrModuleNotOwned unless the module exists and ownerID
	// owns it.
	Unclaim(ctx context.Context, moduleID, ownerID string) error

	// Delete removes a greenhouse, clearing every member's membership and
	// the owner's favourite pointer if it referenced this greenhouse.
	// Returns ErrNotFound for a missing or foreign greenhouse.
	Delete(ctx context.Context, id, ownerID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed greenhouse repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// moduleTargets carries the three setpoints copied between members.
type moduleTargets struct {
	temperature sql.NullFloat64
	humidity    sql.NullFloat64
	lighting    sql.NullFloat64
}

// Create builds a greenhouse from a main module and zero or more secondaries.
func (r *SQLiteRepository) Create(ctx context.Context, ownerID, name, mainModuleID string, secondaryModuleIDs []string) (*Greenhouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: greenhouse name is required", ErrInvalidInput)
	}
	if mainModuleID == "" {
		return nil, fmt.Errorf("%w: main module is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	// Name must be unique per owner.
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM greenhouses WHERE owner_id = ? AND name = ?",
		ownerID, name,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("checking greenhouse name: %w", err)
	}
	if count > 0 {
		return nil, ErrNameTaken
	}

	// The main module must be owned by the caller and not yet grouped.
	targets, err := checkJoinable(ctx, tx, mainModuleID, ownerID, "main")
	if err != nil {
		return nil, err
	}

	// Secondaries must be distinct from the main module; duplicates
	// within the list collapse to one membership.
	secondaries := dedupeOrdered(secondaryModuleIDs)
	for _, id := range secondaries {
		if id == mainModuleID {
			return nil, fmt.Errorf("%w: module %s listed as both main and secondary", ErrInvalidInput, id)
		}
		if _, err := checkJoinable(ctx, tx, id, ownerID, "secondary"); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	gh := &Greenhouse{
		ID:           uuid.NewString(),
		Name:         name,
		OwnerID:      ownerID,
		MainModuleID: mainModuleID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO greenhouses (id, name, owner_id, main_module_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		gh.ID, gh.Name, gh.OwnerID, gh.MainModuleID,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("inserting greenhouse: %w", err)
	}

	nowStr := now.Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"UPDATE modules SET greenhouse_id = ?, updated_at = ? WHERE id = ?",
		gh.ID, nowStr, mainModuleID,
	); err != nil {
		return nil, fmt.Errorf("grouping main module: %w", err)
	}

	// Copy-on-join: every secondary inherits the main module's targets
	// verbatim, unset ones included.
	for _, id := range secondaries {
		if _, err := tx.ExecContext(ctx, `
			UPDATE modules
			SET greenhouse_id = ?, target_temperature = ?, target_humidity = ?,
			    target_lighting = ?, updated_at = ?
			WHERE id = ?`,
			gh.ID, targets.temperature, targets.humidity, targets.lighting, nowStr, id,
		); err != nil {
			return nil, fmt.Errorf("grouping secondary module: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing greenhouse: %w", err)
	}
	return gh, nil
}

// GetByID retrieves a greenhouse owned by ownerID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id, ownerID string) (*Greenhouse, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, main_module_id, created_at, updated_at
		FROM greenhouses WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	gh, err := scanGreenhouse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying greenhouse: %w", err)
	}
	return gh, nil
}

// ListByOwner retrieves all greenhouses created by a user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Greenhouse, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, owner_id, main_module_id, created_at, updated_at
		FROM greenhouses WHERE owner_id = ? ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying greenhouses: %w", err)
	}
	defer rows.Close()

	var greenhouses []Greenhouse
	for rows.Next() {
		gh, err := scanGreenhouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning greenhouse: %w", err)
		}
		greenhouses = append(greenhouses, *gh)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating greenhouses: %w", err)
	}
	return greenhouses, nil
}

// SetMainModule promotes an existing member to main.
func (r *SQLiteRepository) SetMainModule(ctx context.Context, id, ownerID, newMainModuleID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var currentMain string
	err = tx.QueryRowContext(ctx,
		"SELECT main_module_id FROM greenhouses WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&currentMain)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying greenhouse: %w", err)
	}

	// The candidate must already be grouped into this greenhouse.
	var targets moduleTargets
	err = tx.QueryRowContext(ctx, `
		SELECT target_temperature, target_humidity, target_lighting
		FROM modules WHERE id = ? AND greenhouse_id = ?`,
		newMainModuleID, id,
	).Scan(&targets.temperature, &targets.humidity, &targets.lighting)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotAMember, newMainModuleID)
	}
	if err != nil {
		return fmt.Errorf("querying candidate module: %w", err)
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"UPDATE greenhouses SET main_module_id = ?, updated_at = ? WHERE id = ?",
		newMainModuleID, nowStr, id,
	); err != nil {
		return fmt.Errorf("updating main module: %w", err)
	}

	// Push-on-promote: the new main's targets become the greenhouse
	// climate for every other member, in the same transaction as the
	// pointer swap.
	if _, err := tx.ExecContext(ctx, `
		UPDATE modules
		SET target_temperature = ?, target_humidity = ?, target_lighting = ?, updated_at = ?
		WHERE greenhouse_id = ? AND id != ?`,
		targets.temperature, targets.humidity, targets.lighting, nowStr, id, newMainModuleID,
	); err != nil {
		return fmt.Errorf("propagating targets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing promotion: %w", err)
	}
	return nil
}

// Withdraw removes a module from whatever greenhouse it belongs to.
func (r *SQLiteRepository) Withdraw(ctx context.Context, moduleID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if err := r.withdraw(ctx, tx, moduleID, nowStr); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing withdrawal: %w", err)
	}
	return nil
}

// Unclaim withdraws a module from its greenhouse and clears its owner in
// one transaction. The withdrawal runs first so succession and dissolution
// see the member list as it was while the module was still claimed.
func (r *SQLiteRepository) Unclaim(ctx context.Context, moduleID, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var owner sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT owner_id FROM modules WHERE id = ?", moduleID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrModuleNotOwned
	}
	if err != nil {
		return fmt.Errorf("querying module owner: %w", err)
	}
	if !owner.Valid || owner.String != ownerID {
		return ErrModuleNotOwned
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if err := r.withdraw(ctx, tx, moduleID, nowStr); err != nil {
		return err
	}

	// Hardware nobody owns must not keep actuating.
	if _, err := tx.ExecContext(ctx,
		"UPDATE modules SET owner_id = NULL, is_active = 0, updated_at = ? WHERE id = ?",
		nowStr, moduleID,
	); err != nil {
		return fmt.Errorf("releasing module: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unclaim: %w", err)
	}
	return nil
}

// withdraw clears a module's membership inside an open transaction,
// running succession or dissolution when the main module leaves.
// Withdrawing an ungrouped or unknown module is a no-op.
func (r *SQLiteRepository) withdraw(ctx context.Context, tx *sql.Tx, moduleID, nowStr string) error {
	var greenhouseID sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT greenhouse_id FROM modules WHERE id = ?", moduleID,
	).Scan(&greenhouseID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !greenhouseID.Valid) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying module membership: %w", err)
	}
	ghID := greenhouseID.String

	var mainModuleID string
	err = tx.QueryRowContext(ctx,
		"SELECT main_module_id FROM greenhouses WHERE id = ?", ghID,
	).Scan(&mainModuleID)
	if err != nil {
		return fmt.Errorf("querying greenhouse: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE modules SET greenhouse_id = NULL, updated_at = ? WHERE id = ?",
		nowStr, moduleID,
	); err != nil {
		return fmt.Errorf("clearing module membership: %w", err)
	}

	if moduleID == mainModuleID {
		return r.handleMainDeparture(ctx, tx, ghID, nowStr)
	}
	return nil
}

// handleMainDeparture promotes a successor or dissolves the greenhouse
// after its main module has been withdrawn.
func (r *SQLiteRepository) handleMainDeparture(ctx context.Context, tx *sql.Tx, ghID, nowStr string) error {
	// Deterministic succession: the remaining member with the lowest
	// module ID takes over. Its own targets are kept as-is.
	var successorID string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM modules WHERE greenhouse_id = ? ORDER BY id LIMIT 1", ghID,
	).Scan(&successorID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Last member left: dissolve and drop dangling favourites.
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET favorite_greenhouse_id = NULL, updated_at = ? WHERE favorite_greenhouse_id = ?",
			nowStr, ghID,
		); err != nil {
			return fmt.Errorf("clearing favourite greenhouse: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM greenhouses WHERE id = ?", ghID); err != nil {
			return fmt.Errorf("dissolving greenhouse: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("querying successor module: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE greenhouses SET main_module_id = ?, updated_at = ? WHERE id = ?",
		successorID, nowStr, ghID,
	); err != nil {
		return fmt.Errorf("promoting successor module: %w", err)
	}
	return nil
}

// Delete removes a greenhouse and clears every reference to it.
func (r *SQLiteRepository) Delete(ctx context.Context, id, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM greenhouses WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("querying greenhouse: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"UPDATE modules SET greenhouse_id = NULL, updated_at = ? WHERE greenhouse_id = ?",
		nowStr, id,
	); err != nil {
		return fmt.Errorf("clearing member modules: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET favorite_greenhouse_id = NULL, updated_at = ? WHERE favorite_greenhouse_id = ?",
		nowStr, id,
	); err != nil {
		return fmt.Errorf("clearing favourite greenhouse: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM greenhouses WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting greenhouse: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing deletion: %w", err)
	}
	return nil
}

// checkJoinable verifies a module can join a greenhouse for ownerID and
// returns its current targets. role is used in error messages only.
func checkJoinable(ctx context.Context, tx *sql.Tx, moduleID, ownerID, role string) (moduleTargets, error) {
	var targets moduleTargets
	var greenhouseID sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT greenhouse_id, target_temperature, target_humidity, target_lighting
		FROM modules WHERE id = ? AND owner_id = ?`,
		moduleID, ownerID,
	).Scan(&greenhouseID, &targets.temperature, &targets.humidity, &targets.lighting)
	if errors.Is(err, sql.ErrNoRows) {
		return targets, fmt.Errorf("%w: %s module %s not found or not owned", ErrInvalidInput, role, moduleID)
	}
	if err != nil {
		return targets, fmt.Errorf("querying %s module: %w", role, err)
	}
	if greenhouseID.Valid {
		return targets, fmt.Errorf("%w: %s module %s already belongs to a greenhouse", ErrInvalidInput, role, moduleID)
	}
	return targets, nil
}

// scanGreenhouse scans a row or rows result into a Greenhouse.
func scanGreenhouse(scanner interface{ Scan(dest ...any) error }) (*Greenhouse, error) {
	var gh Greenhouse
	var createdAt, updatedAt string

	if err := scanner.Scan(&gh.ID, &gh.Name, &gh.OwnerID, &gh.MainModuleID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var parseErr error
	gh.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	gh.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &gh, nil
}

// dedupeOrdered removes duplicate IDs while preserving first-seen order.
func dedupeOrdered(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
