package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// Config is a provisioning file: everything one run needs to bring a host
// to a running service.
type Config struct {
	// Name identifies the deployment in logs and run history.
	Name string `yaml:"name" json:"name" validate:"required"`

	// User owns the checkout and runs the service.
	User string `yaml:"user" json:"user" validate:"required"`

	Target    TargetConfig     `yaml:"target" json:"target"`
	Sanitize  SanitizeConfig   `yaml:"sanitize" json:"sanitize"`
	Packages  PackagesConfig   `yaml:"packages" json:"packages"`
	Runtime   RuntimeConfig    `yaml:"runtime" json:"runtime"`
	Source    SourceConfig     `yaml:"source" json:"source"`
	App       AppConfig        `yaml:"app" json:"app"`
	Service   ServiceConfig    `yaml:"service" json:"service"`
	Retry     RetryConfig      `yaml:"retry" json:"retry"`
	State     StateConfig      `yaml:"state" json:"state"`
	Policy    PolicyConfig     `yaml:"policy" json:"policy"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`

	// BaseDir is the directory of the loaded file; relative paths in the
	// file resolve against it.
	BaseDir string `yaml:"-" json:"-"`
}

// TargetConfig selects the host to provision. An empty Host provisions the
// local machine.
type TargetConfig struct {
	// Host is user@host[:port].
	Host                  string        `yaml:"host" json:"host"`
	AuthMethod            string        `yaml:"auth_method" json:"auth_method" validate:"omitempty,oneof=key password"`
	PrivateKeyPath        string        `yaml:"private_key_path" json:"private_key_path"`
	Password              string        `yaml:"password" json:"password"`
	KnownHostsPath        string        `yaml:"known_hosts_path" json:"known_hosts_path"`
	StrictHostKeyChecking *bool         `yaml:"strict_host_key_checking" json:"strict_host_key_checking"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// Remote reports whether the target is reached over SSH.
func (t TargetConfig) Remote() bool {
	return t.Host != ""
}

// SanitizeConfig configures the pre-flight repair.
type SanitizeConfig struct {
	Enabled      *bool    `yaml:"enabled" json:"enabled"`
	Roots        []string `yaml:"roots" json:"roots"`
	Denylist     []string `yaml:"denylist" json:"denylist"`
	Marker       string   `yaml:"marker" json:"marker"`
	BackupSuffix string   `yaml:"backup_suffix" json:"backup_suffix"`
}

// IsEnabled reports whether the sanitize stage runs.
func (s SanitizeConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// PackagesConfig lists the system packages and optional snap tools.
type PackagesConfig struct {
	// Manager is apt, dnf or auto.
	Manager string       `yaml:"manager" json:"manager" validate:"oneof=auto apt dnf"`
	Install []string     `yaml:"install" json:"install" validate:"dive,required"`
	Snaps   []SnapConfig `yaml:"snaps" json:"snaps" validate:"dive"`
}

// SnapConfig is one optional snap tool.
type SnapConfig struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Binary  string `yaml:"binary" json:"binary"`
	Classic bool   `yaml:"classic" json:"classic"`
}

// RuntimeConfig selects the language runtime.
type RuntimeConfig struct {
	// Channel is "lts" or an exact version.
	Channel        string               `yaml:"channel" json:"channel" validate:"required"`
	Binary         string               `yaml:"binary" json:"binary" validate:"required"`
	VersionManager VersionManagerConfig `yaml:"version_manager" json:"version_manager"`
}

// VersionManagerConfig locates or installs the version manager.
type VersionManagerConfig struct {
	Candidates       []string `yaml:"candidates" json:"candidates" validate:"min=1,dive,required"`
	InstallScriptURL string   `yaml:"install_script_url" json:"install_script_url" validate:"required,url"`
	InitScript       string   `yaml:"init_script" json:"init_script"`
	FallbackInit     string   `yaml:"fallback_init" json:"fallback_init"`
}

// SourceConfig lists the repositories to acquire.
type SourceConfig struct {
	Primary RepositoryConfig   `yaml:"primary" json:"primary"`
	Plugins []RepositoryConfig `yaml:"plugins" json:"plugins" validate:"dive"`

	// Update pulls existing checkouts on every run instead of treating an
	// existing directory as satisfied.
	Update bool `yaml:"update" json:"update"`

	Dependencies DependenciesConfig `yaml:"dependencies" json:"dependencies"`
}

// RepositoryConfig is one repository to clone or update.
type RepositoryConfig struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	URL       string `yaml:"url" json:"url" validate:"required"`
	Path      string `yaml:"path" json:"path" validate:"required"`
	Recursive bool   `yaml:"recursive" json:"recursive"`
}

// DependenciesConfig runs the application's dependency resolver inside the
// primary checkout.
type DependenciesConfig struct {
	// Command is split like a shell would, e.g. "npm ci --omit=dev".
	Command string `yaml:"command" json:"command"`

	// Marker is created by the resolver, relative to the checkout.
	Marker string `yaml:"marker" json:"marker"`
}

// AppConfig is the application configuration rendered into ConfigPath.
type AppConfig struct {
	Host       string          `yaml:"host" json:"host" validate:"required"`
	Port       int             `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Accounts   []AccountConfig `yaml:"accounts" json:"accounts" validate:"dive"`
	Plugins    []string        `yaml:"plugins" json:"plugins"`
	Logging    AppLogging      `yaml:"logging" json:"logging"`
	ConfigPath string          `yaml:"config_path" json:"config_path" validate:"required"`

	// Template overrides the built-in configuration template.
	Template string `yaml:"template" json:"template"`

	// PublicHost is shown in connection info instead of Host.
	PublicHost string `yaml:"public_host" json:"public_host"`
}

// AccountConfig is one application account.
type AccountConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
	Role     string `yaml:"role" json:"role" validate:"required,oneof=admin operator viewer"`
}

// AppLogging is the logging block of the rendered configuration.
type AppLogging struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file" json:"file"`
}

// ServiceConfig describes the supervisor unit.
type ServiceConfig struct {
	Name         string            `yaml:"name" json:"name" validate:"required"`
	Description  string            `yaml:"description" json:"description"`
	Command      string            `yaml:"command" json:"command" validate:"required"`
	Environment  map[string]string `yaml:"environment" json:"environment"`
	Restart      string            `yaml:"restart" json:"restart" validate:"oneof=no always on-failure on-abnormal"`
	RestartDelay time.Duration     `yaml:"restart_delay" json:"restart_delay"`
	After        []string          `yaml:"after" json:"after"`
	UnitDir      string            `yaml:"unit_dir" json:"unit_dir"`
}

// RetryConfig bounds retries of network-bound collaborator calls.
type RetryConfig struct {
	Attempts uint          `yaml:"attempts" json:"attempts" validate:"min=1,max=10"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// StateConfig configures the run history database.
type StateConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IsEnabled reports whether runs are recorded.
func (s StateConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// PolicyConfig selects the checks run against the file before a run.
type PolicyConfig struct {
	// Paths lists extra .rego files or directories.
	Paths []string `yaml:"paths" json:"paths" validate:"dive,required"`

	// Disabled names built-in or loaded policies to skip.
	Disabled []string `yaml:"disabled" json:"disabled"`

	// Strict turns error severity findings into a failed validation.
	Strict bool `yaml:"strict" json:"strict"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "source.primary.url").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a provisioning file is invalid.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}
