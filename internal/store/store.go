// Package store persists the device credentials and last accepted
// settings.
//
// The whole blob is read and written at once. Erase is the factory reset:
// after it, Load reports ErrNotFound and the device boots into
// provisioning.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when nothing has been saved.
var ErrNotFound = errors.New("store: no stored configuration")

// Config is the persisted blob.
type Config struct {
	SSID        string `json:"ssid"`
	Password    string `json:"password"`
	CompanyName string `json:"companyName"`
	DeviceID    string `json:"deviceId"`
	Model       string `json:"model"`

	// SSIDAuth is set once the credentials have associated successfully.
	SSIDAuth bool `json:"ssidAuth"`

	// Settings is the last accepted verification response.
	Settings          json.RawMessage `json:"ioSettings,omitempty"`
	SettingsTimestamp string          `json:"settingsTimestamp,omitempty"`
	SettingsSavedAt   time.Time       `json:"settingsSavedAt,omitempty"`
}

// Provisioned reports whether the blob holds enough to join a network and
// identify the device.
func (c Config) Provisioned() bool {
	return c.SSID != "" && c.CompanyName != "" && c.DeviceID != ""
}

// HasSettings reports whether a fallback settings payload is stored.
func (c Config) HasSettings() bool {
	return len(c.Settings) > 0
}

// Store loads and saves the blob.
type Store interface {
	Load(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
	Erase(ctx context.Context) error
}
