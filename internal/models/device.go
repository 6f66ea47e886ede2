package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is one registered per-user device or API binding.
type Device struct {
	ID        uuid.UUID         `json:"id"`
	Username  string            `json:"username"`
	Type      string            `json:"type"`
	Auth      map[string]string `json:"authentication_fields"`
	Latitude  *float64          `json:"latitude,omitempty"`
	Longitude *float64          `json:"longitude,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// SupportedDevice describes one device type the system integrates with.
type SupportedDevice struct {
	Type    string   `json:"type"`
	Brand   string   `json:"brand"`
	Model   string   `json:"model"`
	Metrics []string `json:"metrics"`
}
