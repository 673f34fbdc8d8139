package primitives

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// DefaultUnitDir is where unit files are written.
const DefaultUnitDir = "/etc/systemd/system"

// ServiceUnit is the supervisor descriptor for the deployed application.
type ServiceUnit struct {
	Name             string
	Description      string
	User             string
	WorkingDirectory string
	Environment      map[string]string
	ExecStart        []string
	Restart          string
	RestartDelay     time.Duration
	After            []string
	UnitDir          string
}

// FileName returns the unit file name.
func (u ServiceUnit) FileName() string {
	if strings.HasSuffix(u.Name, ".service") {
		return u.Name
	}
	return u.Name + ".service"
}

// Path returns the unit file path.
func (u ServiceUnit) Path() string {
	dir := u.UnitDir
	if dir == "" {
		dir = DefaultUnitDir
	}
	return path.Join(dir, u.FileName())
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{ .Description }}
{{- range .After }}
After={{ . }}
{{- end }}

[Service]
Type=simple
{{- if .User }}
User={{ .User }}
{{- end }}
WorkingDirectory={{ .WorkingDirectory }}
{{- range .Environment }}
Environment={{ . }}
{{- end }}
ExecStart={{ .ExecStart }}
Restart={{ .Restart }}
RestartSec={{ .RestartSec }}

[Install]
WantedBy=multi-user.target
`))

// RenderUnit renders the unit file. Environment entries are sorted so the
// output is stable.
func RenderUnit(u ServiceUnit) ([]byte, error) {
	if u.Name == "" || len(u.ExecStart) == 0 {
		return nil, fmt.Errorf("service unit requires a name and a command")
	}

	keys := make([]string, 0, len(u.Environment))
	for k := range u.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, systemdQuote(k+"="+u.Environment[k]))
	}

	args := make([]string, len(u.ExecStart))
	for i, a := range u.ExecStart {
		args[i] = systemdQuote(a)
	}

	restart := u.Restart
	if restart == "" {
		restart = "on-failure"
	}
	desc := u.Description
	if desc == "" {
		desc = u.Name
	}

	var buf strings.Builder
	err := unitTemplate.Execute(&buf, map[string]any{
		"Description":      escapeSpecifiers(desc),
		"After":            u.After,
		"User":             u.User,
		"WorkingDirectory": escapeSpecifiers(u.WorkingDirectory),
		"Environment":      env,
		"ExecStart":        strings.Join(args, " "),
		"Restart":          restart,
		"RestartSec":       strconv.Itoa(int(u.RestartDelay / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// systemdQuote double-quotes values containing whitespace or quotes. A
// literal % is doubled so systemd does not expand it as a specifier.
func systemdQuote(s string) string {
	s = escapeSpecifiers(s)
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func escapeSpecifiers(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// Service activation sub-steps, in order.
const (
	StepWrite  = "write"
	StepReload = "reload"
	StepEnable = "enable"
	StepStart  = "start"
)

// WriteServiceUnit regenerates the unit file with elevated privilege, then
// reloads the supervisor, enables and starts the unit. Every sub-step is
// fatal and no later sub-step runs after a failure. A unit that is already
// running is restarted so the regenerated unit and configuration apply.
func (p *Primitives) WriteServiceUnit(ctx context.Context, u ServiceUnit) (string, error) {
	logger := telemetry.FromContext(ctx)

	fail := func(step string, err error) (string, error) {
		return "", engine.NewFatalError(fmt.Sprintf("service activation failed at %s", step), err).
			WithCode(engine.ErrCodeServiceActivation).
			WithOperation(step).
			WithDetail("unit", u.FileName())
	}

	content, err := RenderUnit(u)
	if err != nil {
		return fail(StepWrite, err)
	}
	unitPath := u.Path()
	if err := p.host.MkdirAll(ctx, path.Dir(unitPath), 0755, true); err != nil {
		return fail(StepWrite, err)
	}
	if err := p.host.WriteFile(ctx, unitPath, content, 0644, true); err != nil {
		return fail(StepWrite, err)
	}
	logger.Infof("wrote unit %s", unitPath)

	if err := p.c.Supervisor.Reload(ctx); err != nil {
		return fail(StepReload, err)
	}
	if err := p.c.Supervisor.Enable(ctx, u.FileName()); err != nil {
		return fail(StepEnable, err)
	}

	start := p.c.Supervisor.Start
	if p.c.Supervisor.IsActive(ctx, u.FileName()) {
		start = p.c.Supervisor.Restart
	}
	if err := start(ctx, u.FileName()); err != nil {
		return fail(StepStart, err)
	}

	logger.Infof("service %s started", u.FileName())
	return unitPath, nil
}
