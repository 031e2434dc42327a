// Package config persists the configured Android TV devices and owns the
// naming of their certificate files. One JSON file holds all device records;
// certificate/key pairs live next to it, named by device identifier.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/remote/certs"
)

const configFilename = "config.json"

// DeviceRecord is the persisted configuration of one Android TV.
type DeviceRecord struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Address             string `json:"address"`
	Manufacturer        string `json:"manufacturer,omitempty"`
	Model               string `json:"model,omitempty"`
	AuthError           bool   `json:"auth_error,omitempty"`
	UseExternalMetadata bool   `json:"use_external_metadata,omitempty"`
	UseCompanion        bool   `json:"use_companion,omitempty"`
	UseCompanionVolume  bool   `json:"use_companion_volume,omitempty"`
	UseADBAppList       bool   `json:"use_adb_applist,omitempty"`
	VolumeStep          int    `json:"volume_step,omitempty"`
}

// Handler is notified when a device record is added or removed. A nil record
// on remove means the whole configuration was cleared.
type Handler func(record *DeviceRecord)

// Store manages the device configuration file.
type Store struct {
	mu       sync.Mutex
	dataPath string
	filePath string
	records  []DeviceRecord

	onAdd    Handler
	onRemove Handler
}

// NewStore creates a store rooted at dataPath and loads an existing
// configuration file if present.
func NewStore(dataPath string, onAdd, onRemove Handler) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{
		dataPath: dataPath,
		filePath: filepath.Join(dataPath, configFilename),
		onAdd:    onAdd,
		onRemove: onRemove,
	}
	if err := s.load(); err != nil {
		log.Warn().Err(err).Msg("No device configuration loaded")
	}
	return s, nil
}

// DataPath returns the configuration directory.
func (s *Store) DataPath() string { return s.dataPath }

// All returns a copy of every device record.
func (s *Store) All() []DeviceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeviceRecord{}, s.records...)
}

// Get returns a copy of the record with the given identifier.
func (s *Store) Get(id string) (DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return DeviceRecord{}, false
}

// GetByNameOrAddress returns the first record matching either field.
func (s *Store) GetByNameOrAddress(name, address string) (DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Name == name || r.Address == address {
			return r, true
		}
	}
	return DeviceRecord{}, false
}

// Contains reports whether a record with the given identifier exists.
func (s *Store) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// AddOrUpdate inserts or replaces a record, persists the file and fires the
// add handler (after the remove handler if the device was already known).
func (s *Store) AddOrUpdate(record DeviceRecord) error {
	existed := s.Update(record) == nil

	if existed {
		if s.onRemove != nil {
			s.onRemove(&record)
		}
	} else {
		s.mu.Lock()
		s.records = append(s.records, record)
		err := s.storeLocked()
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if s.onAdd != nil {
		s.onAdd(&record)
	}
	return nil
}

// ErrNotFound is returned when updating a record that does not exist.
var ErrNotFound = fmt.Errorf("device not configured")

// Update replaces an existing record and persists the file.
func (s *Store) Update(record DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			return s.storeLocked()
		}
	}
	return ErrNotFound
}

// UpdateAddress updates only the address of a record, used when the
// reconnect loop detects address drift.
func (s *Store) UpdateAddress(id, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Address = address
			return s.storeLocked()
		}
	}
	return ErrNotFound
}

// SetAuthError flips the auth-error flag of a record if it changed.
func (s *Store) SetAuthError(id string, authError bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].AuthError == authError {
				return nil
			}
			s.records[i].AuthError = authError
			return s.storeLocked()
		}
	}
	return ErrNotFound
}

// Remove deletes a record together with its certificate pair.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	var removed *DeviceRecord
	for i := range s.records {
		if s.records[i].ID == id {
			r := s.records[i]
			removed = &r
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	if removed == nil {
		s.mu.Unlock()
		return false
	}
	if err := certs.Remove(s.certFileLocked(id), s.keyFileLocked(id)); err != nil {
		log.Error().Err(err).Str("device", id).Msg("Failed to remove certificate files")
	}
	if err := s.storeLocked(); err != nil {
		log.Error().Err(err).Msg("Failed to store configuration")
	}
	s.mu.Unlock()

	if s.onRemove != nil {
		s.onRemove(removed)
	}
	return true
}

// Clear removes the configuration file and all certificate pairs.
func (s *Store) Clear() {
	s.mu.Lock()
	pems, _ := filepath.Glob(filepath.Join(s.dataPath, "*.pem"))
	for _, pem := range pems {
		if err := os.Remove(pem); err != nil {
			log.Error().Err(err).Str("file", filepath.Base(pem)).Msg("Failed to remove certificate file")
		}
	}
	s.records = nil
	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Msg("Failed to remove configuration file")
	}
	s.mu.Unlock()

	if s.onRemove != nil {
		s.onRemove(nil)
	}
}

// DefaultCertFile is the transient certificate used before a device
// identifier is known (during initial pairing).
func (s *Store) DefaultCertFile() string {
	return filepath.Join(s.dataPath, "androidtv_remote_cert.pem")
}

// DefaultKeyFile is the transient key used before a device identifier is known.
func (s *Store) DefaultKeyFile() string {
	return filepath.Join(s.dataPath, "androidtv_remote_key.pem")
}

// CertFile returns the certificate path for a device.
func (s *Store) CertFile(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certFileLocked(id)
}

// KeyFile returns the key path for a device.
func (s *Store) KeyFile(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyFileLocked(id)
}

func (s *Store) certFileLocked(id string) string {
	return filepath.Join(s.dataPath, fmt.Sprintf("androidtv_%s_remote_cert.pem", id))
}

func (s *Store) keyFileLocked(id string) string {
	return filepath.Join(s.dataPath, fmt.Sprintf("androidtv_%s_remote_key.pem", id))
}

// AssignDefaultCerts migrates the transient default certificate pair to the
// per-device paths once the identifier is known. With force false, existing
// device certificates are kept.
func (s *Store) AssignDefaultCerts(id string, force bool) error {
	return certs.Migrate(s.DefaultCertFile(), s.DefaultKeyFile(), s.CertFile(id), s.KeyFile(id), force)
}

func (s *Store) storeLocked() error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	var records []DeviceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("invalid configuration file: %w", err)
	}
	for i := range records {
		if records[i].VolumeStep <= 0 || records[i].VolumeStep > 100 {
			records[i].VolumeStep = 10
		}
	}
	s.records = records
	return nil
}

// MigrationRequired reports whether any record is missing manufacturer data
// or old default certificate files are still present.
func (s *Store) MigrationRequired() bool {
	s.mu.Lock()
	for _, r := range s.records {
		if r.Manufacturer == "" {
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()

	_, certErr := os.Stat(s.DefaultCertFile())
	_, keyErr := os.Stat(s.DefaultKeyFile())
	return certErr == nil || keyErr == nil
}
