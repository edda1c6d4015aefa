package log

// Config controls the global logger.
type Config struct {
	// Name is attached to every entry as the "logger" field.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Level is one of debug, info, warn, error.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Format is console or json.
	Format string `conf:"format" yaml:"format" json:"format"`

	// Outputs lists the sinks: stdout, stderr or file.
	Outputs []string `conf:"outputs" yaml:"outputs" json:"outputs"`

	File FileConfig `conf:"file" yaml:"file" json:"file"`
}

// FileConfig configures the rotated file sink.
type FileConfig struct {
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSize    int    `conf:"max_size" yaml:"max_size" json:"max_size"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `conf:"max_age" yaml:"max_age" json:"max_age"`
	Compress   bool   `conf:"compress" yaml:"compress" json:"compress"`
}
