package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/pkg/utils"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultListenPort   = 8000
	DefaultPollInterval = 60
	DefaultLogLevel     = "warning"
	DefaultTimeout      = 30

	// TargetNamePrefix is prepended to every target name that does not
	// already carry it, so all series share the same server label scheme.
	TargetNamePrefix = "ibmi_"
)

// ExporterConfig is the top level configuration of the exporter.
type ExporterConfig struct {
	// ListenPort is the port of the Prometheus exposition endpoint.
	ListenPort int `yaml:"listen_port"`
	// PollInterval is the number of seconds between collection cycles.
	PollInterval int `yaml:"poll_interval"`
	// LogLevel is one of debug, info, warning, error, fatal.
	LogLevel string `yaml:"log_level"`
	// SSL is the default SSL requirement for targets that do not set their own.
	SSL *bool `yaml:"ssl"`

	// Targets maps a target name to its connection settings.
	Targets map[string]TargetConfig `yaml:"targets"`
}

// TargetConfig holds the connection settings of one monitored IBM i server.
type TargetConfig struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database string `yaml:"database"`
	// SSL overrides the exporter wide SSL setting when present.
	SSL *bool `yaml:"ssl"`
	// Timeout bounds connection establishment and each query, in seconds.
	Timeout int `yaml:"timeout"`
	// Options holds extra ODBC connection string keywords.
	Options map[string]string `yaml:"options"`

	UseSSL bool `yaml:"-"` // resolved from SSL and the exporter wide default
}

// LoadExporterConfig loads the exporter configuration: the YAML file first
// (created with defaults when missing), then the environment overlay
// (IBMI_DB_URL, IBMI_SSL, PROMETHEUS_CLIENT_PORT, LOGLEVEL). An empty
// configPath means the file is searched in the known locations.
func LoadExporterConfig(configPath string) (*ExporterConfig, error) {
	if configPath == "" {
		configPath = getConfigPath("ibmi-exporter.yml")
	}

	var config *ExporterConfig
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config, err = createDefaultExporterConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		config = &ExporterConfig{}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("could not parse config file: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.applyEnvironment(); err != nil {
		return nil, err
	}
	config.resolveTargets()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyDefaults fills in the zero valued top level settings.
func (c *ExporterConfig) applyDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.SSL == nil {
		sslDefault := true
		c.SSL = &sslDefault
	}
	if c.Targets == nil {
		c.Targets = make(map[string]TargetConfig)
	}
}

// applyEnvironment overlays the environment variables on the file settings.
// Targets from IBMI_DB_URL are added to the file targets, replacing a file
// target of the same name.
func (c *ExporterConfig) applyEnvironment() error {
	if port := os.Getenv("PROMETHEUS_CLIENT_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PROMETHEUS_CLIENT_PORT %q: %w", port, err)
		}
		c.ListenPort = p
	}
	if level := os.Getenv("LOGLEVEL"); level != "" {
		c.LogLevel = level
	}
	if ssl := os.Getenv("IBMI_SSL"); ssl != "" {
		b, err := strconv.ParseBool(ssl)
		if err != nil {
			return fmt.Errorf("invalid IBMI_SSL %q: %w", ssl, err)
		}
		c.SSL = &b
	}

	if rawURLs := os.Getenv("IBMI_DB_URL"); rawURLs != "" {
		urls, err := utils.ParseURLMap(rawURLs)
		if err != nil {
			return fmt.Errorf("invalid IBMI_DB_URL: %w", err)
		}
		for label, rawURL := range urls {
			target, err := targetFromURL(rawURL, *c.SSL)
			if err != nil {
				return fmt.Errorf("invalid IBMI_DB_URL entry %q: %w", label, err)
			}
			c.Targets[label] = target
		}
	}
	return nil
}

// targetFromURL converts a database URL into a target configuration.
func targetFromURL(rawURL string, sslRequire bool) (TargetConfig, error) {
	parsed, err := utils.ParseDatabaseURL(rawURL, sslRequire)
	if err != nil {
		return TargetConfig{}, err
	}

	// The sslmode option is a marker, not an ODBC keyword.
	useSSL := parsed.Options["sslmode"] == "require"
	delete(parsed.Options, "sslmode")

	return TargetConfig{
		Host:     parsed.Host,
		User:     parsed.User,
		Pass:     parsed.Password,
		Database: parsed.Name,
		SSL:      &useSSL,
		Options:  parsed.Options,
	}, nil
}

// resolveTargets normalizes target names and resolves the derived fields.
func (c *ExporterConfig) resolveTargets() {
	resolved := make(map[string]TargetConfig, len(c.Targets))
	for name, target := range c.Targets {
		if target.SSL != nil {
			target.UseSSL = *target.SSL
		} else {
			target.UseSSL = *c.SSL
		}
		if target.Timeout == 0 {
			target.Timeout = DefaultTimeout
		}
		resolved[NormalizeTargetName(name)] = target
	}
	c.Targets = resolved
}

// NormalizeTargetName prepends the ibmi_ prefix when the name lacks it.
func NormalizeTargetName(name string) string {
	if strings.HasPrefix(name, TargetNamePrefix) {
		return name
	}
	return TargetNamePrefix + name
}

// TargetNames returns the target names in sorted order.
func (c *ExporterConfig) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *ExporterConfig) validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets configured: set IBMI_DB_URL or add targets to the config file")
	}
	for name, target := range c.Targets {
		if target.Host == "" {
			return fmt.Errorf("target %s has no host", name)
		}
	}
	return nil
}

// createDefaultExporterConfig writes a config file with default settings.
func createDefaultExporterConfig(configPath string) (*ExporterConfig, error) {
	sslDefault := true
	config := &ExporterConfig{
		ListenPort:   DefaultListenPort,
		PollInterval: DefaultPollInterval,
		LogLevel:     DefaultLogLevel,
		SSL:          &sslDefault,
		Targets:      map[string]TargetConfig{},
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("could not build default config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return nil, fmt.Errorf("could not write config file: %w", err)
	}

	logger.Info("Created default config file at %s", configPath)
	return config, nil
}

// getConfigPath returns the absolute config file path based on OS.
func getConfigPath(filename string) string {
	// Windows services start in System32, look next to the executable first
	if runtime.GOOS == "windows" {
		exePath, err := os.Executable()
		if err == nil {
			winPath := filepath.Join(filepath.Dir(exePath), filename)
			if _, err := os.Stat(winPath); err == nil {
				logger.Debug("Found config near executable: %s", winPath)
				return winPath
			}
		}
	}

	// Current dir
	if _, err := os.Stat(filename); err == nil {
		return filename
	}

	// Linux fallback
	etcPath := filepath.Join("/etc", "ibmi-exporter", filename)
	if _, err := os.Stat(etcPath); err == nil {
		logger.Debug("Found config in: %s", etcPath)
		return etcPath
	}

	logger.Debug("Config not found, fallback to working dir: %s", filename)
	return filename
}
