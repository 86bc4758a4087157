package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

// AutoUploadFilter restricts automatic uploads by encounter outcome
type AutoUploadFilter string

const (
	FilterNone           AutoUploadFilter = "none"
	FilterSuccessfulOnly AutoUploadFilter = "successful_only"
)

// UserTokenLength is the length of a dps.report user token
const UserTokenLength = 32

// AutoUploadRule decides which logs a service uploads without user action
type AutoUploadRule struct {
	Enabled    bool               `yaml:"enabled" json:"enabled"`
	Filter     AutoUploadFilter   `yaml:"filter" json:"filter"`
	Encounters []domain.TriggerID `yaml:"encounters" json:"encounters"`
}

// Allows reports whether the trigger id is on the allow-list
func (r AutoUploadRule) Allows(id domain.TriggerID) bool {
	return slices.Contains(r.Encounters, id)
}

// DPSReport holds dps.report preferences
type DPSReport struct {
	AutoUpload  AutoUploadRule `yaml:"auto_upload" json:"auto_upload"`
	UserToken   string         `yaml:"user_token" json:"user_token"`
	Anonymize   bool           `yaml:"anonymize" json:"anonymize"`
	DetailedWvW bool           `yaml:"detailed_wvw" json:"detailed_wvw"`
}

// HasUserToken reports whether a well-formed token is stored
func (d DPSReport) HasUserToken() bool {
	return len(d.UserToken) == UserTokenLength
}

// Wingman holds Wingman preferences
type Wingman struct {
	AutoUpload AutoUploadRule `yaml:"auto_upload" json:"auto_upload"`
}

// Parser holds analyzer preferences
type Parser struct {
	AutoParse bool `yaml:"auto_parse" json:"auto_parse"`
}

// Data is the persisted user settings document
type Data struct {
	DPSReport DPSReport `yaml:"dps_report" json:"dps_report"`
	Wingman   Wingman   `yaml:"wingman" json:"wingman"`
	Parser    Parser    `yaml:"parser" json:"parser"`
}

// Rule returns the auto-upload rule for a service
func (d Data) Rule(s domain.Service) AutoUploadRule {
	switch s {
	case domain.ServiceDPSReport:
		return d.DPSReport.AutoUpload
	case domain.ServiceWingman:
		return d.Wingman.AutoUpload
	default:
		return AutoUploadRule{}
	}
}

// Defaults returns the settings used when no file exists yet
func Defaults() Data {
	return Data{
		DPSReport: DPSReport{AutoUpload: AutoUploadRule{Filter: FilterNone}},
		Wingman:   Wingman{AutoUpload: AutoUploadRule{Filter: FilterNone}},
		Parser:    Parser{AutoParse: true},
	}
}

func (d Data) clone() Data {
	d.DPSReport.AutoUpload.Encounters = slices.Clone(d.DPSReport.AutoUpload.Encounters)
	d.Wingman.AutoUpload.Encounters = slices.Clone(d.Wingman.AutoUpload.Encounters)
	return d
}

// Store is the thread-safe owner of the settings document.
// An empty path keeps settings in memory only.
type Store struct {
	path   string
	saveMu sync.Mutex

	mu   sync.RWMutex
	data Data
}

// NewStore returns an in-memory store seeded with data
func NewStore(data Data) *Store {
	return &Store{data: data.clone()}
}

// Load reads settings from path, writing defaults when the file does not exist
func Load(path string) (*Store, error) {
	s := &Store{path: path, data: Defaults()}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("Settings file not found, writing defaults")
		if err := s.Save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	normalize(&s.data)

	return s, nil
}

func normalize(d *Data) {
	for _, rule := range []*AutoUploadRule{&d.DPSReport.AutoUpload, &d.Wingman.AutoUpload} {
		if rule.Filter != FilterSuccessfulOnly {
			rule.Filter = FilterNone
		}
	}
}

// Read returns a copy of the current settings
func (s *Store) Read() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

// Update applies fn under the write lock and persists the result
func (s *Store) Update(fn func(d *Data)) error {
	s.mu.Lock()
	fn(&s.data)
	normalize(&s.data)
	s.mu.Unlock()

	return s.Save()
}

// StoreUserToken persists token unless a valid one is already stored.
// It reports whether the token was written.
func (s *Store) StoreUserToken(token string) (bool, error) {
	if len(token) != UserTokenLength {
		return false, nil
	}

	s.mu.Lock()
	if s.data.DPSReport.HasUserToken() {
		s.mu.Unlock()
		return false, nil
	}
	s.data.DPSReport.UserToken = token
	s.mu.Unlock()

	return true, s.Save()
}

// Save writes the settings file
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	raw, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	return nil
}

// Rule returns the current auto-upload rule for a service
func (s *Store) Rule(svc domain.Service) AutoUploadRule {
	return s.Read().Rule(svc)
}
