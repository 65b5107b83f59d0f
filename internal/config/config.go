// Package config loads pvemap's YAML configuration.
//
// Config file locations (priority order):
//  1. the --config flag
//  2. $PVEMAP_CONFIG
//  3. ./pvemap.yaml
//  4. ~/.config/pvemap/config.yaml
//
// With no file, a single cluster is built from PVE_SERVER, PVE_USERNAME,
// PVE_PASSWORD and PVE_REALM.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/pvemap/internal/proxmox"
	"gopkg.in/yaml.v3"
)

// Transport selects how a cluster is reached
type Transport string

const (
	// TransportAPI uses the REST API with ticket authentication
	TransportAPI Transport = "api"
	// TransportShell runs pvesh on this host
	TransportShell Transport = "shell"
	// TransportSSH runs pvesh on the server over SSH
	TransportSSH Transport = "ssh"
)

// Config is the top-level configuration
type Config struct {
	Clusters []ClusterConfig `yaml:"clusters"`
	// Interval between polls in watch mode
	Interval    Duration     `yaml:"interval,omitempty"`
	Report      ReportConfig `yaml:"report,omitempty"`
	MetricsAddr string       `yaml:"metrics_addr,omitempty"`
}

// ClusterConfig describes one Proxmox cluster. Each entry becomes an
// independent adapter.
type ClusterConfig struct {
	Name      string    `yaml:"name,omitempty"`
	Server    string    `yaml:"server"`
	Username  string    `yaml:"username"`
	Password  string    `yaml:"password"`
	Realm     string    `yaml:"realm,omitempty"`
	Port      int       `yaml:"port,omitempty"`
	VerifySSL bool      `yaml:"verify_ssl,omitempty"`
	Timeout   Duration  `yaml:"timeout,omitempty"`
	Transport Transport `yaml:"transport,omitempty"`
	SSHPort   int       `yaml:"ssh_port,omitempty"`
}

// ReportConfig controls where poll reports are kept
type ReportConfig struct {
	// Database is the sqlite file for poll history; empty disables it
	Database string `yaml:"database,omitempty"`
	// Retention drops history older than this; zero keeps everything
	Retention Duration `yaml:"retention,omitempty"`
}

// Default values
const (
	DefaultInterval = time.Minute
	DefaultTimeout  = 30 * time.Second
)

// Load finds and loads the config file. explicit takes precedence over the
// search path. With no file the config comes from the environment.
func Load(explicit string) (*Config, string, error) {
	path := explicit
	if path == "" {
		path = FindConfigPath()
	}

	if path == "" {
		cfg := &Config{}
		cfg.ApplyEnv()
		cfg.applyDefaults()
		return cfg, "", nil
	}

	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// FindConfigPath returns the first existing config file, or ""
func FindConfigPath() string {
	candidates := []string{os.Getenv("PVEMAP_CONFIG"), "pvemap.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "pvemap", "config.yaml"))
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// ApplyEnv fills a single cluster from PVE_* variables. Values in the file
// win over the environment.
func (c *Config) ApplyEnv() {
	server := os.Getenv("PVE_SERVER")
	username := os.Getenv("PVE_USERNAME")
	password := os.Getenv("PVE_PASSWORD")
	realm := os.Getenv("PVE_REALM")

	if len(c.Clusters) == 0 {
		if server == "" && username == "" && password == "" {
			return
		}
		c.Clusters = []ClusterConfig{{}}
	}
	if len(c.Clusters) != 1 {
		return
	}

	cl := &c.Clusters[0]
	if cl.Server == "" {
		cl.Server = server
	}
	if cl.Username == "" {
		cl.Username = username
	}
	if cl.Password == "" {
		cl.Password = password
	}
	if cl.Realm == "" {
		cl.Realm = realm
	}
}

// Overrides are connection values given on the command line
type Overrides struct {
	Server   string
	Username string
	Password string
	Realm    string
}

// ApplyOverrides sets the non-empty overrides on the single configured
// cluster, creating it when none exists. Overrides win over the file and
// the environment.
func (c *Config) ApplyOverrides(o Overrides) error {
	if o == (Overrides{}) {
		return nil
	}
	if len(c.Clusters) > 1 {
		return &proxmox.ConfigurationError{Field: "clusters", Msg: "command-line overrides need exactly one configured cluster"}
	}
	if len(c.Clusters) == 0 {
		c.Clusters = []ClusterConfig{{}}
	}

	cl := &c.Clusters[0]
	if o.Server != "" {
		cl.Server = o.Server
	}
	if o.Username != "" {
		cl.Username = o.Username
	}
	if o.Password != "" {
		cl.Password = o.Password
	}
	if o.Realm != "" {
		cl.Realm = o.Realm
	}
	cl.applyDefaults()
	return nil
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = Duration(DefaultInterval)
	}
	for i := range c.Clusters {
		c.Clusters[i].applyDefaults()
	}
}

func (cc *ClusterConfig) applyDefaults() {
	if cc.Transport == "" {
		cc.Transport = TransportAPI
	}
	if cc.Realm == "" {
		cc.Realm = proxmox.DefaultRealm
	}
	if cc.Port == 0 {
		cc.Port = proxmox.DefaultPort
	}
	if cc.SSHPort == 0 {
		cc.SSHPort = 22
	}
	if cc.Timeout == 0 {
		cc.Timeout = Duration(DefaultTimeout)
	}
	if cc.Name == "" {
		cc.Name = cc.Server
		if cc.Name == "" && cc.Transport == TransportShell {
			cc.Name = "local"
		}
	}
}

// Validate checks every cluster. Errors wrap *proxmox.ConfigurationError.
func (c *Config) Validate() error {
	if len(c.Clusters) == 0 {
		return &proxmox.ConfigurationError{Field: "clusters", Msg: "no cluster configured"}
	}

	seen := make(map[string]bool)
	for i := range c.Clusters {
		cc := &c.Clusters[i]
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("cluster %d (%s): %w", i, cc.Name, err)
		}
		if seen[cc.Name] {
			return &proxmox.ConfigurationError{Field: "name", Msg: fmt.Sprintf("duplicate cluster name %q", cc.Name)}
		}
		seen[cc.Name] = true
	}
	return nil
}

// Validate checks the fields required by the cluster's transport
func (cc *ClusterConfig) Validate() error {
	switch cc.Transport {
	case TransportAPI, TransportSSH:
		return cc.Credentials().Validate()
	case TransportShell:
		return nil
	default:
		return &proxmox.ConfigurationError{Field: "transport", Msg: fmt.Sprintf("unknown transport %q", cc.Transport)}
	}
}

// Credentials returns the cluster's login credentials
func (cc *ClusterConfig) Credentials() proxmox.Credentials {
	return proxmox.Credentials{
		Server:   cc.Server,
		Username: cc.Username,
		Password: cc.Password,
		Realm:    cc.Realm,
	}
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
