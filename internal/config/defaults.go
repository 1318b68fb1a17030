package config

const (
	defaultLibraryDir          = "~/music"
	defaultStagingDir          = "~/.local/share/cadence/staging"
	defaultLogDir              = "~/.local/share/cadence/logs"
	defaultAPIBind             = "127.0.0.1:8196"
	defaultCatalogTimeout      = 30
	defaultCatalogRate         = 4.0
	defaultCatalogBurst        = 8
	defaultDownloadFormat      = "mp3"
	defaultMaxRetries          = 3
	defaultRetryBackoffSeconds = 2
	defaultItemCap             = 500
	defaultMaxJobs             = 25
	defaultJobTimeoutMinutes   = 60
	defaultMaxLogsPerJob       = 100
	defaultMaxGlobalLogs       = 1000
	defaultFFmpegBinary        = "ffmpeg"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Catalog: Catalog{
			RequestTimeout: defaultCatalogTimeout,
			RatePerSecond:  defaultCatalogRate,
			RateBurst:      defaultCatalogBurst,
		},
		Downloads: Downloads{
			Format:              defaultDownloadFormat,
			MaxRetries:          defaultMaxRetries,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			ItemCap:             defaultItemCap,
		},
		Jobs: Jobs{
			MaxJobs:           defaultMaxJobs,
			JobTimeoutMinutes: defaultJobTimeoutMinutes,
			MaxLogsPerJob:     defaultMaxLogsPerJob,
			MaxGlobalLogs:     defaultMaxGlobalLogs,
		},
		Normalize: Normalize{
			Enabled:      false,
			FFmpegBinary: defaultFFmpegBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
