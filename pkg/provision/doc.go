// Package provision turns a provisioning file into the fixed, ordered list
// of stages the engine runs against a host.
//
// The stage list is literal:
//
//	sanitize              Sanitizing
//	install-packages      DependencyInstall
//	install-tools         DependencyInstall
//	version-manager       RuntimeAcquisition
//	runtime               RuntimeAcquisition
//	clone-primary         SourceAcquisition
//	clone-plugins         SourceAcquisition
//	resolve-dependencies  SourceAcquisition
//	render-config         ConfigGeneration
//	activate-service      ServiceActivation
//
// Installation and acquisition stages are gated by probes and skip when the
// host already satisfies them. Configuration and service stages always run
// and overwrite their artifacts in full. The version manager environment is
// carried from stage to stage in a per-run session rather than through the
// provisioner's own process environment.
package provision
