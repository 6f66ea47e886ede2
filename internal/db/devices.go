package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"continuouscare/internal/models"
)

// AddDevice stores a device registration and returns its generated id.
func (d *DB) AddDevice(ctx context.Context, dev models.Device) (uuid.UUID, error) {
	id := uuid.New()
	query := `
        INSERT INTO devices (id, username, type, authentication_fields, latitude, longitude, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.Pool.Exec(ctx, query,
		id, dev.Username, dev.Type, dev.Auth, dev.Latitude, dev.Longitude, time.Now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add device for %s: %w", dev.Username, err)
	}
	return id, nil
}

// ListDevicesOf returns every device registered by one user.
func (d *DB) ListDevicesOf(ctx context.Context, username string) ([]models.Device, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT id, username, type, authentication_fields, latitude, longitude, created_at
        FROM devices
        WHERE username = $1
        ORDER BY created_at`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices of %s: %w", username, err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var dev models.Device
		err := rows.Scan(&dev.ID, &dev.Username, &dev.Type, &dev.Auth,
			&dev.Latitude, &dev.Longitude, &dev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, dev)
	}
	return devices, rows.Err()
}

// UpdateDevice overwrites a device's credentials and location.
func (d *DB) UpdateDevice(ctx context.Context, dev models.Device) error {
	query := `
        UPDATE devices
        SET authentication_fields = $3, latitude = $4, longitude = $5
        WHERE id = $1 AND username = $2`
	tag, err := d.Pool.Exec(ctx, query,
		dev.ID, dev.Username, dev.Auth, dev.Latitude, dev.Longitude)
	if err != nil {
		return fmt.Errorf("failed to update device %s: %w", dev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no device %s for user %s", dev.ID, dev.Username)
	}
	return nil
}

// UpdateDeviceAuth persists refreshed credentials only. Called by the
// scheduler after a successful credential refresh.
func (d *DB) UpdateDeviceAuth(ctx context.Context, username, deviceID string, auth map[string]string) error {
	query := `
        UPDATE devices
        SET authentication_fields = authentication_fields || $3
        WHERE id = $1 AND username = $2`
	_, err := d.Pool.Exec(ctx, query, deviceID, username, auth)
	if err != nil {
		return fmt.Errorf("failed to update credentials of device %s: %w", deviceID, err)
	}
	return nil
}

// DeleteDevice removes one device of a user.
func (d *DB) DeleteDevice(ctx context.Context, username string, id uuid.UUID) error {
	tag, err := d.Pool.Exec(ctx,
		`DELETE FROM devices WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no device %s for user %s", id, username)
	}
	return nil
}

// SupportedDevices returns the device-type catalogue.
func (d *DB) SupportedDevices(ctx context.Context) ([]models.SupportedDevice, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT type, brand, model, metrics
        FROM supported_devices
        ORDER BY brand, model`)
	if err != nil {
		return nil, fmt.Errorf("failed to list supported devices: %w", err)
	}
	defer rows.Close()

	var devices []models.SupportedDevice
	for rows.Next() {
		var sd models.SupportedDevice
		if err := rows.Scan(&sd.Type, &sd.Brand, &sd.Model, &sd.Metrics); err != nil {
			return nil, fmt.Errorf("failed to scan supported device: %w", err)
		}
		devices = append(devices, sd)
	}
	return devices, rows.Err()
}
