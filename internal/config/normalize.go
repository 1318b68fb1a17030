package config

import "strings"

// normalize expands and cleans path fields and fills gaps left by a sparse
// config file so downstream code never sees zero values.
func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.LibraryDir, &c.Paths.StagingDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	c.Catalog.APIKey = strings.TrimSpace(c.Catalog.APIKey)
	if c.Catalog.RequestTimeout <= 0 {
		c.Catalog.RequestTimeout = defaultCatalogTimeout
	}
	if c.Catalog.RatePerSecond <= 0 {
		c.Catalog.RatePerSecond = defaultCatalogRate
	}
	if c.Catalog.RateBurst <= 0 {
		c.Catalog.RateBurst = defaultCatalogBurst
	}

	c.Downloads.Format = strings.ToLower(strings.TrimSpace(c.Downloads.Format))
	if c.Downloads.Format == "" {
		c.Downloads.Format = defaultDownloadFormat
	}
	if c.Downloads.MaxRetries < 0 {
		c.Downloads.MaxRetries = 0
	}
	if c.Downloads.RetryBackoffSeconds <= 0 {
		c.Downloads.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Downloads.ItemCap <= 0 {
		c.Downloads.ItemCap = defaultItemCap
	}

	if c.Jobs.MaxJobs <= 0 {
		c.Jobs.MaxJobs = defaultMaxJobs
	}
	if c.Jobs.JobTimeoutMinutes <= 0 {
		c.Jobs.JobTimeoutMinutes = defaultJobTimeoutMinutes
	}
	if c.Jobs.MaxLogsPerJob <= 0 {
		c.Jobs.MaxLogsPerJob = defaultMaxLogsPerJob
	}
	if c.Jobs.MaxGlobalLogs <= 0 {
		c.Jobs.MaxGlobalLogs = defaultMaxGlobalLogs
	}

	c.Normalize.FFmpegBinary = strings.TrimSpace(c.Normalize.FFmpegBinary)
	if c.Normalize.FFmpegBinary == "" {
		c.Normalize.FFmpegBinary = defaultFFmpegBinary
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
