package config

const (
	defaultDataDir            = "~/.local/share/curator"
	defaultMediaRoot          = "~/media"
	defaultExportDir          = "~/exports"
	defaultLogDir             = "~/.local/share/curator/logs"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultJobPollInterval    = 2
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 5
	defaultHeartbeatTimeout   = 60
	defaultItemTimeout        = 30
	defaultMaxItemRetries     = 3
	defaultRetryBackoffMillis = 250
	defaultExportWorkers      = 4
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			MediaRoot: defaultMediaRoot,
			ExportDir: defaultExportDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			JobPollInterval:    defaultJobPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ItemTimeout:        defaultItemTimeout,
			MaxItemRetries:     defaultMaxItemRetries,
			RetryBackoffMillis: defaultRetryBackoffMillis,
			ExportWorkers:      defaultExportWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.MediaRoot == "" {
		c.MediaRoot = def.MediaRoot
	}
	if c.ExportDir == "" {
		c.ExportDir = def.ExportDir
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
	if c.APIBind == "" {
		c.APIBind = def.APIBind
	}
	if c.Workflow.JobPollInterval == 0 {
		c.Workflow.JobPollInterval = def.Workflow.JobPollInterval
	}
	if c.Workflow.ErrorRetryInterval == 0 {
		c.Workflow.ErrorRetryInterval = def.Workflow.ErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval == 0 {
		c.Workflow.HeartbeatInterval = def.Workflow.HeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout == 0 {
		c.Workflow.HeartbeatTimeout = def.Workflow.HeartbeatTimeout
	}
	if c.Workflow.ItemTimeout == 0 {
		c.Workflow.ItemTimeout = def.Workflow.ItemTimeout
	}
	if c.Workflow.MaxItemRetries == 0 {
		c.Workflow.MaxItemRetries = def.Workflow.MaxItemRetries
	}
	if c.Workflow.RetryBackoffMillis == 0 {
		c.Workflow.RetryBackoffMillis = def.Workflow.RetryBackoffMillis
	}
	if c.Workflow.ExportWorkers == 0 {
		c.Workflow.ExportWorkers = def.Workflow.ExportWorkers
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
