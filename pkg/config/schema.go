package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// provisioningSchema is unified with every provisioning file, YAML or CUE.
// Top-level keys are closed so that misspelled sections are rejected.
const provisioningSchema = `
#Repository: {
	name:       string & !=""
	url:        string & =~"^((https?|ssh|git|file)://|[^@/]+@[^:]+:)"
	path:       string & =~"^/"
	recursive?: bool
}

#Account: {
	username: string & !=""
	password: string
	role?:    "admin" | "operator" | "viewer"
}

#Provisioning: {
	name:  string & !=""
	user?: string & =~"^[a-z_][a-z0-9_-]*$"

	target?: {
		host?:        string & =~"^([^@]+@)?[^:@]+(:[0-9]+)?$"
		auth_method?: "key" | "password"
		...
	}
	sanitize?: {
		enabled?:  bool
		roots?:    [...string]
		denylist?: [...string]
		...
	}
	packages?: {
		manager?: "auto" | "apt" | "dnf"
		install?: [...string]
		snaps?: [...{name: string & !="", ...}]
	}
	runtime?: {
		channel?: "lts" | "LTS" | =~"^v?[0-9]+(\\.[0-9]+){0,2}$" | number
		binary?:  string & !=""
		version_manager?: {
			candidates?: [...string & =~"^/"]
			...
		}
	}
	source?: {
		primary?: #Repository
		plugins?: [...#Repository]
		update?:  bool
		dependencies?: {...}
	}
	app?: {
		host?:        string
		port?:        int & >=1 & <=65535
		accounts?:    [...#Account]
		plugins?:     [...string]
		config_path?: string & =~"^/"
		...
	}
	service?: {
		name?:    string & =~"^[A-Za-z0-9@._-]+$"
		restart?: "no" | "always" | "on-failure" | "on-abnormal"
		...
	}
	retry?:     {...}
	state?:     {...}
	policy?: {
		paths?:    [...string & !=""]
		disabled?: [...string]
		strict?:   bool
	}
	telemetry?: {...}
}
`

// Schema validates provisioning documents against the built-in CUE schema.
type Schema struct {
	ctx  *cue.Context
	root cue.Value
}

// NewSchema compiles the built-in schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(provisioningSchema, cue.Filename("schema.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	root := val.LookupPath(cue.ParsePath("#Provisioning"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up schema definition: %w", err)
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// Context returns the CUE context values must be built in to be checked.
func (s *Schema) Context() *cue.Context {
	return s.ctx
}

// Check unifies val with the schema and reports every violation.
func (s *Schema) Check(val cue.Value) ValidationErrors {
	unified := s.root.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// CheckData encodes decoded data, e.g. a YAML document, and checks it.
func (s *Schema) CheckData(data any) ValidationErrors {
	val := s.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}
	return s.Check(val)
}
