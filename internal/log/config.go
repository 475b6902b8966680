package log

// Config configures the logger.
type Config struct {
	// Name is the service name attached to every entry.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Level is the minimum enabled logging level: debug, info, warn, error.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Format selects the encoder: json or console.
	Format string `conf:"format" yaml:"format" json:"format"`

	// Output selects the sink: stdout, stderr, or file.
	Output string `conf:"output" yaml:"output" json:"output"`

	// File configures the rotating file sink, used when Output is file.
	File FileConfig `conf:"file" yaml:"file" json:"file"`
}

// FileConfig configures log file rotation.
type FileConfig struct {
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSizeMB  int    `conf:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `conf:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `conf:"compress" yaml:"compress" json:"compress"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "clinichub"
	}

	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "json"
	}

	if c.Output == "" {
		c.Output = "stdout"
	}

	return c
}
