package config

// Config represents a canvass.yaml configuration file.
// All values are optional and act as defaults for canvass flags.
// CLI flags always override config values.
type Config struct {
	Analyzer     string   `yaml:"analyzer"`
	AnalyzerArgs []string `yaml:"analyzer_args"`
	ScratchDir   string   `yaml:"scratch_dir"`
	SavePath     string   `yaml:"save_path"`
	LogLevel     string   `yaml:"log_level"`
}

// DefaultSavePath is where recovered schemas are written when neither the
// config file nor the save flag names a target.
const DefaultSavePath = "~/analyze_can/restored.dbc"

// ApplyDefaults fills unset fields with built-in values.
func (c *Config) ApplyDefaults() {
	if c.SavePath == "" {
		c.SavePath = DefaultSavePath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
