package policy

// Built-in policy names.
const (
	PolicyDefaultCredentials = "default-credentials"
	PolicyOpenListener       = "open-listener"
	PolicyInsecureSource     = "insecure-source"
	PolicyRootService        = "root-service"
	PolicyFloatingRuntime    = "floating-runtime"
)

// BuiltinPolicies returns the policies every evaluation starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		defaultCredentialsPolicy(),
		openListenerPolicy(),
		insecureSourcePolicy(),
		rootServicePolicy(),
		floatingRuntimePolicy(),
	}
}

// defaultCredentialsPolicy flags accounts shipped with well-known passwords.
func defaultCredentialsPolicy() Policy {
	return Policy{
		Name:        PolicyDefaultCredentials,
		Description: "Flags application accounts that use default or trivially guessable passwords",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package hostprov.policies.credentials

import rego.v1

weak := {"admin", "password", "changeme", "secret", "default", "123456", "letmein"}

deny contains finding if {
	some i, account in input.app.accounts
	lower(account.password) in weak
	finding := {
		"message": sprintf("account %s uses the default password %q; change it after first login", [account.username, account.password]),
		"field": sprintf("app.accounts[%d].password", [i]),
	}
}

deny contains finding if {
	some i, account in input.app.accounts
	not lower(account.password) in weak
	account.password == account.username
	finding := {
		"message": sprintf("account %s uses its username as password", [account.username]),
		"field": sprintf("app.accounts[%d].password", [i]),
	}
}
`,
	}
}

// openListenerPolicy flags applications bound to every interface.
func openListenerPolicy() Policy {
	return Policy{
		Name:        PolicyOpenListener,
		Description: "Notes applications that listen on all network interfaces",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package hostprov.policies.listener

import rego.v1

deny contains finding if {
	input.app.host in {"0.0.0.0", "::", "[::]", ""}
	finding := {
		"message": sprintf("application listens on all interfaces (port %d); restrict it with a firewall or bind a specific address", [input.app.port]),
		"field": "app.host",
	}
}
`,
	}
}

// insecureSourcePolicy flags repositories fetched without transport security.
func insecureSourcePolicy() Policy {
	return Policy{
		Name:        PolicyInsecureSource,
		Description: "Flags repositories cloned over unauthenticated transports",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package hostprov.policies.source

import rego.v1

insecure(url) if startswith(lower(url), "http://")

insecure(url) if startswith(lower(url), "git://")

deny contains finding if {
	insecure(input.source.primary.url)
	finding := {
		"message": sprintf("primary repository %s is fetched over an insecure transport: %s", [input.source.primary.name, input.source.primary.url]),
		"field": "source.primary.url",
	}
}

deny contains finding if {
	some i, plugin in input.source.plugins
	insecure(plugin.url)
	finding := {
		"message": sprintf("plugin repository %s is fetched over an insecure transport: %s", [plugin.name, plugin.url]),
		"field": sprintf("source.plugins[%d].url", [i]),
	}
}
`,
	}
}

// rootServicePolicy flags services that run as root.
func rootServicePolicy() Policy {
	return Policy{
		Name:        PolicyRootService,
		Description: "Flags services configured to run as root",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package hostprov.policies.service

import rego.v1

deny contains finding if {
	input.user == "root"
	finding := {
		"message": sprintf("service %s runs as root", [input.service.name]),
		"field": "user",
	}
}
`,
	}
}

// floatingRuntimePolicy notes runtimes that are not pinned.
func floatingRuntimePolicy() Policy {
	return Policy{
		Name:        PolicyFloatingRuntime,
		Description: "Notes runtime channels that follow the latest LTS release",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package hostprov.policies.runtime

import rego.v1

deny contains finding if {
	lower(input.runtime.channel) == "lts"
	finding := {
		"message": "runtime follows the latest LTS release; hosts provisioned at different times may differ",
		"field": "runtime.channel",
	}
}
`,
	}
}
