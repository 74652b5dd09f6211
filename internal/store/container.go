package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrContainerNotFound is returned when a container lookup or partial update
// targets an id that does not exist.
var ErrContainerNotFound = errors.New("store: container not found")

// Container is one physical returnable tracked by the kiosk.
type Container struct {
	ID           string
	QRCode       string
	IsReturnable bool
	DueDate      *time.Time
	UpdatedAt    time.Time
}

// ContainerUpdate carries a partial update to a container; nil fields are
// left unchanged.
type ContainerUpdate struct {
	QRCode       *string
	IsReturnable *bool
	DueDate      **time.Time // double pointer: non-nil outer means "set", inner nil clears the column
}

// ContainerRepository provides CRUD access to the containers table.
type ContainerRepository struct {
	db *DB
}

// NewContainerRepository returns a repository backed by db.
func NewContainerRepository(db *DB) *ContainerRepository {
	return &ContainerRepository{db: db}
}

// Create inserts a container, generating a UUID id.
func (r *ContainerRepository) Create(ctx context.Context, c *Container) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.CreateWithID(ctx, c)
}

// CreateWithID inserts a container using the caller-supplied id, as the sync
// service does when replacing the catalog with backend-assigned ids.
func (r *ContainerRepository) CreateWithID(ctx context.Context, c *Container) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO containers (id, qr_code, is_returnable, due_date, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.QRCode, boolToInt(c.IsReturnable), nullableTime(c.DueDate), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting container: %w", err)
	}
	return nil
}

// GetByID returns the container with the given id.
func (r *ContainerRepository) GetByID(ctx context.Context, id string) (*Container, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, qr_code, is_returnable, due_date, updated_at FROM containers WHERE id = ?`, id)
	return scanContainer(row)
}

// GetByQR returns the container whose QR payload matches qrCode.
func (r *ContainerRepository) GetByQR(ctx context.Context, qrCode string) (*Container, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, qr_code, is_returnable, due_date, updated_at FROM containers WHERE qr_code = ?`, qrCode)
	return scanContainer(row)
}

// Update applies a partial update to the container with the given id.
func (r *ContainerRepository) Update(ctx context.Context, id string, u ContainerUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}

	if u.QRCode != nil {
		sets = append(sets, "qr_code = ?")
		args = append(args, *u.QRCode)
	}
	if u.IsReturnable != nil {
		sets = append(sets, "is_returnable = ?")
		args = append(args, boolToInt(*u.IsReturnable))
	}
	if u.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, nullableTime(*u.DueDate))
	}

	args = append(args, id)
	query := "UPDATE containers SET " + joinSets(sets) + " WHERE id = ?"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating container: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrContainerNotFound
	}
	return nil
}

// Delete removes the container with the given id.
func (r *ContainerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM containers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting container: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrContainerNotFound
	}
	return nil
}

// DeleteAll removes every container, as the sync service does before
// reloading the catalog from an initial sync response.
func (r *ContainerRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM containers"); err != nil {
		return fmt.Errorf("deleting all containers: %w", err)
	}
	return nil
}

// ReplaceAll atomically replaces the whole container set with containers,
// as the sync service does when the backend's sync response delivers the
// authoritative catalog. Containers with a zero UpdatedAt get updatedAt.
func (r *ContainerRepository) ReplaceAll(ctx context.Context, containers []Container, updatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM containers"); err != nil {
		return fmt.Errorf("clearing containers: %w", err)
	}
	for _, c := range containers {
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = updatedAt
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO containers (id, qr_code, is_returnable, due_date, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.QRCode, boolToInt(c.IsReturnable), nullableTime(c.DueDate), formatTime(c.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting container %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing container replacement: %w", err)
	}
	return nil
}

// ListSince returns containers updated at or after ts.
func (r *ContainerRepository) ListSince(ctx context.Context, ts time.Time) ([]Container, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, qr_code, is_returnable, due_date, updated_at FROM containers
		 WHERE updated_at >= ? ORDER BY updated_at`, formatTime(ts))
	if err != nil {
		return nil, fmt.Errorf("querying containers since %s: %w", ts, err)
	}
	defer rows.Close()
	return scanContainers(rows)
}

// ListAll returns every container.
func (r *ContainerRepository) ListAll(ctx context.Context) ([]Container, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, qr_code, is_returnable, due_date, updated_at FROM containers ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	defer rows.Close()
	return scanContainers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(scanner rowScanner) (*Container, error) {
	var c Container
	var isReturnable int
	var dueDate sql.NullString
	var updatedAt string

	err := scanner.Scan(&c.ID, &c.QRCode, &isReturnable, &dueDate, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContainerNotFound
		}
		return nil, fmt.Errorf("scanning container: %w", err)
	}

	c.IsReturnable = isReturnable != 0
	if dueDate.Valid {
		t, err := parseTime(dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing due_date: %w", err)
		}
		c.DueDate = &t
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func scanContainers(rows *sql.Rows) ([]Container, error) {
	var containers []Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		containers = append(containers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating containers: %w", err)
	}
	return containers, nil
}
