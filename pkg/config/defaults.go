package config

import (
	"path"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/openfroyo/hostprov/pkg/telemetry"
	"github.com/openfroyo/hostprov/pkg/tools"
)

// DefaultNVMInstallURL is the version manager installer used when the file
// names none.
const DefaultNVMInstallURL = "https://raw.githubusercontent.com/nvm-sh/nvm/v0.40.1/install.sh"

// Default returns the configuration a provisioning file is decoded over.
func Default() *Config {
	retry := tools.DefaultRetryPolicy()
	return &Config{
		Sanitize: SanitizeConfig{
			Roots:    []string{"/etc/apt/sources.list", "/etc/apt/sources.list.d"},
			Denylist: []string{"cdrom:"},
		},
		Packages: PackagesConfig{
			Manager: "auto",
		},
		Runtime: RuntimeConfig{
			Channel: "lts",
			Binary:  "node",
			VersionManager: VersionManagerConfig{
				InstallScriptURL: DefaultNVMInstallURL,
				InitScript:       "nvm.sh",
			},
		},
		App: AppConfig{
			Host:    "0.0.0.0",
			Logging: AppLogging{Level: "info"},
		},
		Service: ServiceConfig{
			Restart:      "on-failure",
			RestartDelay: 5 * time.Second,
			After:        []string{"network-online.target"},
		},
		Retry: RetryConfig{
			Attempts: retry.Attempts,
			Interval: retry.InitialInterval,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// applyDerivedDefaults fills values that depend on other fields.
func applyDerivedDefaults(cfg *Config) {
	if len(cfg.Runtime.VersionManager.Candidates) == 0 && cfg.User != "" {
		cfg.Runtime.VersionManager.Candidates = []string{
			path.Join(HomeDir(cfg.User), ".nvm"),
			"/usr/local/nvm",
		}
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = cfg.Name
	}
	if cfg.Service.Description == "" {
		cfg.Service.Description = cfg.Name
	}
	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(xdg.StateHome, "hostprov", "state.db")
	}
	if cfg.App.Template != "" && !filepath.IsAbs(cfg.App.Template) && cfg.BaseDir != "" {
		cfg.App.Template = filepath.Join(cfg.BaseDir, cfg.App.Template)
	}
	for i, p := range cfg.Policy.Paths {
		if !filepath.IsAbs(p) && cfg.BaseDir != "" {
			cfg.Policy.Paths[i] = filepath.Join(cfg.BaseDir, p)
		}
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "hostprov"
	}
}

// HomeDir returns the conventional home directory of user on the target.
func HomeDir(user string) string {
	if user == "root" {
		return "/root"
	}
	return path.Join("/home", user)
}
