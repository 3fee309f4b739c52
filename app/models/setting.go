package models

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdSettings holds the runtime tunables of the ad engine. Values are stored
// as rows in the settings table and cached in memory.
type AdSettings struct {
	FraudDuplicateWindowSeconds int    `json:"fraud_duplicate_window_seconds" validate:"min=1,max=86400"`
	FraudRapidWindowSeconds     int    `json:"fraud_rapid_window_seconds" validate:"min=1,max=3600"`
	FraudRapidClickLimit        int    `json:"fraud_rapid_click_limit" validate:"min=1,max=10000"`
	FraudSessionWindowSeconds   int    `json:"fraud_session_window_seconds" validate:"min=1,max=86400"`
	FraudSessionClickLimit      int    `json:"fraud_session_click_limit" validate:"min=1,max=10000"`
	FraudSuspendThreshold       int    `json:"fraud_suspend_threshold" validate:"min=1,max=100000"`
	FraudSuspendWindowHours     int    `json:"fraud_suspend_window_hours" validate:"min=1,max=720"`
	SponsoredPositions          string `json:"sponsored_positions" validate:"required,max=100"`
	SponsoredRepeatInterval     int    `json:"sponsored_repeat_interval" validate:"min=0,max=1000"`
	SponsoredDedupeRadius       int    `json:"sponsored_dedupe_radius" validate:"min=0,max=100"`
	SweepIntervalMinutes        int    `json:"sweep_interval_minutes" validate:"min=1,max=1440"`
	FraudCleanupIntervalMinutes int    `json:"fraud_cleanup_interval_minutes" validate:"min=1,max=1440"`
	EventArchiveEnabled         bool   `json:"event_archive_enabled"`
	mu                          sync.RWMutex
}

// DefaultAdSettings returns the built-in tunables.
func DefaultAdSettings() *AdSettings {
	return &AdSettings{
		FraudDuplicateWindowSeconds: 300,
		FraudRapidWindowSeconds:     60,
		FraudRapidClickLimit:        10,
		FraudSessionWindowSeconds:   1800,
		FraudSessionClickLimit:      5,
		FraudSuspendThreshold:       50,
		FraudSuspendWindowHours:     24,
		SponsoredPositions:          "1,3,6",
		SponsoredRepeatInterval:     10,
		SponsoredDedupeRadius:       5,
		SweepIntervalMinutes:        15,
		FraudCleanupIntervalMinutes: 5,
		EventArchiveEnabled:         false,
	}
}

// Global settings instance
var (
	adSettings *AdSettings
	settingsMu sync.RWMutex
)

// GetAdSettings returns the current settings snapshot, or defaults when
// nothing was loaded yet.
func GetAdSettings() *AdSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if adSettings == nil {
		return DefaultAdSettings()
	}
	return adSettings
}

// SetAdSettings replaces the in-memory snapshot without touching the database.
func SetAdSettings(s *AdSettings) {
	settingsMu.Lock()
	adSettings = s
	settingsMu.Unlock()
}

// LoadAdSettings loads settings from database into memory
func LoadAdSettings(db *gorm.DB) error {
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	loaded := DefaultAdSettings()
	for _, setting := range settings {
		loaded.apply(setting.Key, setting.Value)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid settings in database: %w", err)
	}

	SetAdSettings(loaded)
	return nil
}

// SaveAdSettings validates and upserts every tunable, then swaps the snapshot.
func SaveAdSettings(db *gorm.DB, settings *AdSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	for key, value := range settings.values() {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)
		if result.Error != nil {
			if result.Error != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
			setting = Setting{Key: key, Value: value, Type: getSettingType(key)}
			if err := db.Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create setting %s: %w", key, err)
			}
			continue
		}
		setting.Value = value
		if err := db.Save(&setting).Error; err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}
	}

	SetAdSettings(settings)
	return nil
}

func (s *AdSettings) intFields() map[string]*int {
	return map[string]*int{
		"fraud_duplicate_window_seconds": &s.FraudDuplicateWindowSeconds,
		"fraud_rapid_window_seconds":     &s.FraudRapidWindowSeconds,
		"fraud_rapid_click_limit":        &s.FraudRapidClickLimit,
		"fraud_session_window_seconds":   &s.FraudSessionWindowSeconds,
		"fraud_session_click_limit":      &s.FraudSessionClickLimit,
		"fraud_suspend_threshold":        &s.FraudSuspendThreshold,
		"fraud_suspend_window_hours":     &s.FraudSuspendWindowHours,
		"sponsored_repeat_interval":      &s.SponsoredRepeatInterval,
		"sponsored_dedupe_radius":        &s.SponsoredDedupeRadius,
		"sweep_interval_minutes":         &s.SweepIntervalMinutes,
		"fraud_cleanup_interval_minutes": &s.FraudCleanupIntervalMinutes,
	}
}

func (s *AdSettings) apply(key, value string) {
	switch key {
	case "sponsored_positions":
		s.SponsoredPositions = strings.TrimSpace(value)
		return
	case "event_archive_enabled":
		s.EventArchiveEnabled = value == "true"
		return
	}
	if ptr, ok := s.intFields()[key]; ok {
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*ptr = v
		}
	}
}

func (s *AdSettings) values() map[string]string {
	out := map[string]string{
		"sponsored_positions":   s.SponsoredPositions,
		"event_archive_enabled": strconv.FormatBool(s.EventArchiveEnabled),
	}
	for key, ptr := range s.intFields() {
		out[key] = strconv.Itoa(*ptr)
	}
	return out
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case "sponsored_positions":
		return "string"
	case "event_archive_enabled":
		return "boolean"
	default:
		return "integer"
	}
}

// Validate validates the settings
func (s *AdSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	if _, err := ParsePositions(s.SponsoredPositions); err != nil {
		return err
	}
	return nil
}

// GetSponsoredPositions returns the fixed 1-indexed insertion positions.
func (s *AdSettings) GetSponsoredPositions() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions, err := ParsePositions(s.SponsoredPositions)
	if err != nil {
		return []int{1, 3, 6}
	}
	return positions
}

// GetSweepInterval returns the lifecycle sweep interval.
func (s *AdSettings) GetSweepInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// GetFraudCleanupInterval returns the fraud window pruning interval.
func (s *AdSettings) GetFraudCleanupInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FraudCleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.FraudCleanupIntervalMinutes) * time.Minute
}

// IsEventArchiveEnabled reports whether the daily S3 export runs.
func (s *AdSettings) IsEventArchiveEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.EventArchiveEnabled
}

// ParsePositions parses a comma separated list of strictly increasing
// 1-indexed positions.
func ParsePositions(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	prev := 0
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid position %q: %w", p, err)
		}
		if v <= prev {
			return nil, fmt.Errorf("positions must be positive and increasing: %q", raw)
		}
		out = append(out, v)
		prev = v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no positions in %q", raw)
	}
	return out, nil
}
