// Package config loads provisioning files for hostprov.
//
// # Overview
//
// A provisioning file describes one deployment: the packages and runtime a
// host needs, the repositories to acquire, the application configuration to
// render and the service unit to install. It is written in YAML or CUE;
// both are checked against the same built-in CUE schema and then decoded
// into Config.
//
// # Loading
//
//	cfg, err := config.Load("provision.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        // report every problem at once
//	    }
//	}
//
// Loading runs in four steps:
//
//  1. ${VAR} and ${VAR:-default} references are replaced from the
//     environment. An unset variable without a default is an error, so
//     secrets never silently render as empty strings. Quote references
//     whose values may contain YAML syntax.
//  2. The document is unified with the schema. Unknown top-level sections
//     and malformed repository URLs are rejected here, with file positions.
//  3. The document is decoded over Default(), so only the fields present
//     in the file override defaults. Unknown fields are errors.
//  4. Struct tags are checked with validator, followed by cross-field rules
//     (runtime channel, command splitting, duplicate repositories).
//
// # Example
//
//	name: wiki
//	user: wiki
//	packages:
//	  install: [git, curl, build-essential]
//	runtime:
//	  channel: lts
//	source:
//	  primary:
//	    name: wiki
//	    url: https://github.com/example/wiki.git
//	    path: /home/wiki/wiki
//	    recursive: true
//	  dependencies:
//	    command: npm ci --omit=dev
//	    marker: node_modules
//	app:
//	  port: 3000
//	  config_path: /home/wiki/wiki/config.yml
//	  accounts:
//	    - {username: admin, password: "${WIKI_ADMIN_PASSWORD}", role: admin}
//	service:
//	  command: node server.js
package config
