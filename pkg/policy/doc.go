// Package policy checks provisioning files against Rego policies before a
// run touches the host.
//
// Every engine starts with a small set of built-in policies: default
// application passwords, listeners bound to all interfaces, repositories
// fetched over plain http or git, services running as root and runtimes
// that follow a floating channel. Additional policies are plain .rego files
// loaded from the paths named in the file's policy section.
//
// A policy reports findings through a deny set in its package. Each member
// is either a string or an object with message, field and an optional
// severity overriding the policy default:
//
//	package site.policies.ports
//
//	import rego.v1
//
//	deny contains finding if {
//		input.app.port < 1024
//		finding := {"message": "privileged port", "field": "app.port", "severity": "error"}
//	}
//
// Findings never stop a run on their own. Callers decide what to do with
// Result.Blocking, which is how "hostprov validate --strict" fails.
package policy
