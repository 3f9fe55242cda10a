package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry point of the Queensland Transport booking flow.
const DefaultStartURL = "https://www.service.transport.qld.gov.au/SBSExternal/public/WelcomeDrivingTest.xhtml"

// Timeout budgets per operation class. No operation is retried; a timeout
// at any step is terminal for the run.
const (
	InitialLoadTimeout = 60 * time.Second
	TransitionTimeout  = 30 * time.Second
	SlotPageTimeout    = 45 * time.Second
	SlotTableTimeout   = 15 * time.Second
	LabelReadTimeout   = 5 * time.Second
)

// Location is one region to check for slots. Selector is the element id of
// the region's option in the booking form dropdown.
type Location struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

type locationsFile struct {
	Locations []Location `yaml:"locations"`
}

// DefaultLocations returns the regions checked when no locations file is
// configured.
func DefaultLocations() []Location {
	return []Location{
		{Name: "SEQ BRISBANE NORTHSIDE", Selector: "BookingSearchForm:region_12"},
		{Name: "SEQ BRISBANE SOUTHSIDE", Selector: "BookingSearchForm:region_13"},
	}
}

// Config holds everything a run needs. Secrets come from the environment,
// the location list optionally from a YAML file.
type Config struct {
	TelegramToken  string
	TelegramChatID string

	LicenceNumber string
	ContactName   string
	ContactPhone  string

	StartURL      string
	TermsCheckbox string // acknowledgement checkbox selector on the T&C page; empty means the page has none
	Locations     []Location

	Headless bool
	NoNotify bool
	Interval time.Duration // 0 = single run
}

// Load reads configuration from environment variables, honouring both the
// DTW_ prefixed names and the bare secret names used by CI.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:  getEnvAny([]string{"DTW_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"}, ""),
		TelegramChatID: getEnvAny([]string{"DTW_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"}, ""),
		LicenceNumber:  getEnvAny([]string{"DTW_DL_NUMBER", "USER_DL_NUMBER"}, ""),
		ContactName:    getEnvAny([]string{"DTW_CONTACT_NAME", "USER_CONTACT_NAME"}, ""),
		ContactPhone:   getEnvAny([]string{"DTW_CONTACT_PHONE", "USER_CONTACT_PHONE"}, ""),
		StartURL:       getEnvAny([]string{"DTW_START_URL"}, DefaultStartURL),
		TermsCheckbox:  getEnvAny([]string{"DTW_TERMS_CHECKBOX"}, ""),
		Headless:       getEnvBool("DTW_HEADLESS", true),
		Locations:      DefaultLocations(),
	}

	if path := os.Getenv("DTW_LOCATIONS_FILE"); path != "" {
		locations, err := LoadLocations(path)
		if err != nil {
			return nil, fmt.Errorf("load locations: %w", err)
		}
		cfg.Locations = locations
	}

	return cfg, nil
}

// LoadLocations reads an ordered location list from a YAML file.
func LoadLocations(path string) ([]Location, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, err
	}

	var file locationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Locations) == 0 {
		return nil, fmt.Errorf("%s defines no locations", path)
	}
	for i, loc := range file.Locations {
		if loc.Name == "" || loc.Selector == "" {
			return nil, fmt.Errorf("%s: location %d is missing name or selector", path, i)
		}
	}
	return file.Locations, nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"telegram bot token", c.TelegramToken},
		{"telegram chat id", c.TelegramChatID},
		{"licence number", c.LicenceNumber},
		{"contact name", c.ContactName},
		{"contact phone", c.ContactPhone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(c.Locations) == 0 {
		missing = append(missing, "locations")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TelegramConfigured reports whether the notification channel itself has
// credentials, independent of the rest of the configuration.
func (c *Config) TelegramConfigured() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func getEnvAny(keys []string, fallback string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
