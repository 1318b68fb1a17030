package main

import (
	"strings"

	"cadence/internal/config"
)

// commandContext resolves lazily-shared CLI state: the loaded configuration and
// the daemon API address.
type commandContext struct {
	addressFlag *string
	configFlag  *string

	cfg     *config.Config
	cfgPath string
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{addressFlag: addressFlag, configFlag: configFlag}
}

// ensureConfig loads the configuration at most once per invocation.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, resolvedPath, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.cfgPath = resolvedPath
	return cfg, nil
}

// client builds an API client against the flag-specified address, falling back
// to the configured bind address.
func (c *commandContext) client() (*apiClient, error) {
	if c.addressFlag != nil {
		if addr := strings.TrimSpace(*c.addressFlag); addr != "" {
			return newAPIClient(addr), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg.Paths.APIBind), nil
}
