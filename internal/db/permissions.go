package db

import (
	"context"
	"fmt"

	"continuouscare/internal/models"
)

// RequestPermission records a medic asking for access to a client's data.
func (d *DB) RequestPermission(ctx context.Context, medic, client string, duration int) error {
	query := `
        INSERT INTO permissions (medic, client, duration, state)
        VALUES ($1, $2, $3, 'pending')
        ON CONFLICT (medic, client) DO UPDATE SET duration = $3, state = 'pending'`
	if _, err := d.Pool.Exec(ctx, query, medic, client, duration); err != nil {
		return fmt.Errorf("failed to request permission %s->%s: %w", medic, client, err)
	}
	return nil
}

// GrantPermission records a client proactively granting access to a medic.
func (d *DB) GrantPermission(ctx context.Context, client, medic string, duration int) error {
	query := `
        INSERT INTO permissions (medic, client, duration, state)
        VALUES ($1, $2, $3, 'accepted')
        ON CONFLICT (medic, client) DO UPDATE SET duration = $3, state = 'accepted'`
	if _, err := d.Pool.Exec(ctx, query, medic, client, duration); err != nil {
		return fmt.Errorf("failed to grant permission %s->%s: %w", client, medic, err)
	}
	return nil
}

func (d *DB) setPermissionState(ctx context.Context, medic, client, state string) error {
	tag, err := d.Pool.Exec(ctx,
		`UPDATE permissions SET state = $3 WHERE medic = $1 AND client = $2`,
		medic, client, state)
	if err != nil {
		return fmt.Errorf("failed to set permission %s->%s to %s: %w", medic, client, state, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no permission between %s and %s", medic, client)
	}
	return nil
}

// AcceptPermission moves a pending request to accepted.
func (d *DB) AcceptPermission(ctx context.Context, client, medic string) error {
	return d.setPermissionState(ctx, medic, client, "accepted")
}

// RejectPermission moves a pending request to rejected.
func (d *DB) RejectPermission(ctx context.Context, client, medic string) error {
	return d.setPermissionState(ctx, medic, client, "rejected")
}

// RemovePermission deletes a permission row entirely (pending removal by
// the medic or accepted removal by the client).
func (d *DB) RemovePermission(ctx context.Context, medic, client string) error {
	tag, err := d.Pool.Exec(ctx,
		`DELETE FROM permissions WHERE medic = $1 AND client = $2`, medic, client)
	if err != nil {
		return fmt.Errorf("failed to remove permission %s->%s: %w", medic, client, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no permission between %s and %s", medic, client)
	}
	return nil
}

// HasPermission reports whether a medic currently holds accepted access to
// a client's data.
func (d *DB) HasPermission(ctx context.Context, medic, client string) (bool, error) {
	var ok bool
	err := d.Pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM permissions
            WHERE medic = $1 AND client = $2 AND state = 'accepted'
        )`, medic, client).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check permission %s->%s: %w", medic, client, err)
	}
	return ok, nil
}

// PendingPermissions lists the requests awaiting a response from user.
func (d *DB) PendingPermissions(ctx context.Context, username string) ([]models.Permission, error) {
	return d.queryPermissions(ctx, `
        SELECT medic, client, duration, state
        FROM permissions
        WHERE state = 'pending' AND (medic = $1 OR client = $1)`, username)
}

// AllPermissions lists every permission row involving user.
func (d *DB) AllPermissions(ctx context.Context, username string) ([]models.Permission, error) {
	return d.queryPermissions(ctx, `
        SELECT medic, client, duration, state
        FROM permissions
        WHERE medic = $1 OR client = $1`, username)
}

func (d *DB) queryPermissions(ctx context.Context, query, username string) ([]models.Permission, error) {
	rows, err := d.Pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions of %s: %w", username, err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.Medic, &p.Client, &p.Duration, &p.State); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
