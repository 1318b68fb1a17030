package config

import (
	"fmt"
	"strings"
)

var supportedFormats = map[string]struct{}{
	"mp3":  {},
	"m4a":  {},
	"flac": {},
	"opus": {},
	"ogg":  {},
	"wav":  {},
}

// IsSupportedFormat reports whether format names an audio container downloads
// can be requested in.
func IsSupportedFormat(format string) bool {
	_, ok := supportedFormats[strings.ToLower(strings.TrimSpace(format))]
	return ok
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/cadence/config.toml"
		}
		return fmt.Errorf("catalog.base_url is required. Edit %s (create with 'cadence config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		return fmt.Errorf("catalog.base_url must be an http(s) URL, got %q", c.Catalog.BaseURL)
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if !IsSupportedFormat(c.Downloads.Format) {
		return fmt.Errorf("downloads.format %q is not supported (mp3, m4a, flac, opus, ogg, wav)", c.Downloads.Format)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
