package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Setting keys
const (
	SettingResponseWindowHours = "response_window_hours"
	SettingPaymentWindowHours  = "payment_window_hours"
)

// SettingsRepository reads and writes the key/value settings table.
type SettingsRepository struct {
	BaseRepository
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{BaseRepository: NewBaseRepository(db)}
}

// All returns every stored setting.
func (r *SettingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Int returns a setting parsed as an integer, or def when it is missing or malformed.
func (r *SettingsRepository) Int(ctx context.Context, key string, def int) (int, error) {
	var value string
	err := r.DB().QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("querying setting %s: %w", key, err)
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// Update upserts the given settings in one transaction.
func (r *SettingsRepository) Update(ctx context.Context, settings map[string]string) error {
	return r.Transaction(ctx, func(tx *sql.Tx) error {
		for key, value := range settings {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
			`, key, value)
			if err != nil {
				return fmt.Errorf("updating setting %s: %w", key, err)
			}
		}
		return nil
	})
}
