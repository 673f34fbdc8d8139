package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a provisioning file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension. Anything that is not
// .cue is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return FormatCUE
	}
	return FormatYAML
}

// Loader parses, defaults and validates provisioning files.
type Loader struct {
	schema    *Schema
	validator *validator.Validate
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLookupEnv replaces os.LookupEnv for ${VAR} expansion.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// NewLoader creates a loader with the built-in schema.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	schema, err := NewSchema()
	if err != nil {
		return nil, err
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	l := &Loader{
		schema:    schema,
		validator: v,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load reads and validates the provisioning file at path.
func Load(path string) (*Config, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.Load(path)
}

// Load reads and validates the provisioning file at path. Relative paths
// inside the file resolve against its directory.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return l.parse(data, FormatOf(path), path, filepath.Dir(abs))
}

// Parse parses an in-memory provisioning document.
func (l *Loader) Parse(data []byte, format Format) (*Config, error) {
	wd, _ := os.Getwd()
	return l.parse(data, format, "", wd)
}

func (l *Loader) parse(data []byte, format Format, filename, baseDir string) (*Config, error) {
	expanded, errs := l.expand(string(data))
	if len(errs) > 0 {
		return nil, inFile(errs, filename)
	}

	doc, errs := l.normalize(expanded, format, filename)
	if len(errs) > 0 {
		return nil, inFile(errs, filename)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, inFile(ValidationErrors{{Message: err.Error()}}, filename)
	}

	cfg.BaseDir = baseDir
	applyDerivedDefaults(cfg)

	if err := l.Validate(cfg); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			return nil, inFile(verrs, filename)
		}
		return nil, err
	}
	return cfg, nil
}

// normalize checks the document against the schema and returns it as
// YAML (JSON for CUE input, which YAML also accepts).
func (l *Loader) normalize(text string, format Format, filename string) ([]byte, ValidationErrors) {
	switch format {
	case FormatCUE:
		opts := []cue.BuildOption{}
		if filename != "" {
			opts = append(opts, cue.Filename(filename))
		}
		val := l.schema.Context().CompileString(text, opts...)
		if err := val.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
		if errs := l.schema.Check(val); len(errs) > 0 {
			return nil, errs
		}
		out, err := val.MarshalJSON()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		return out, nil

	default:
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
			return nil, ValidationErrors{{Message: err.Error()}}
		}
		if raw == nil {
			return nil, ValidationErrors{{Message: "provisioning file is empty"}}
		}
		if errs := l.schema.CheckData(dropNulls(raw)); len(errs) > 0 {
			return nil, errs
		}
		return []byte(text), nil
	}
}

// dropNulls removes empty YAML values ("plugins:" with nothing after it) so
// the schema treats them as absent.
func dropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val != nil {
				out[k] = dropNulls(val)
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val != nil {
				out = append(out, dropNulls(val))
			}
		}
		return out
	default:
		return v
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expand substitutes ${VAR} and ${VAR:-default}. An unset variable without
// a default is an error.
func (l *Loader) expand(text string) (string, ValidationErrors) {
	var errs ValidationErrors
	out := envRef.ReplaceAllStringFunc(text, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := l.lookupEnv(m[1]); ok && v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("environment variable %s is not set", m[1]),
		})
		return ref
	})
	return out, errs
}

// Validate checks struct constraints and cross-field rules.
func (l *Loader) Validate(cfg *Config) error {
	var errs ValidationErrors

	if err := l.validator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	errs = append(errs, checkSemantics(cfg)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 && pos[0].Filename() != "schema.cue" {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	return out
}

func inFile(errs ValidationErrors, filename string) ValidationErrors {
	if filename == "" {
		return errs
	}
	for i := range errs {
		if errs[i].File == "" {
			errs[i].File = filename
		}
	}
	return errs
}
