// Package sanitizer disables known-bad lines in system configuration files
// before provisioning starts. Matching lines are commented out, never
// deleted, and the original file is kept as a backup.
package sanitizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

const (
	// DefaultMarker is prefixed to every disabled line.
	DefaultMarker = "# "

	// DefaultBackupSuffix is appended to a file's path to name its backup.
	DefaultBackupSuffix = ".hostprov.bak"
)

// ErrNoDenylist is returned when the sanitizer has nothing to match.
var ErrNoDenylist = errors.New("sanitizer denylist is empty")

// Config controls what the sanitizer matches and how it writes.
type Config struct {
	// Denylist holds substrings matched case-insensitively against each line.
	Denylist []string

	// Marker is prefixed to disabled lines.
	Marker string

	// BackupSuffix names the backup of a repaired file.
	BackupSuffix string

	// Elevated routes writes through sudo, and reads of files the connecting
	// user cannot open.
	Elevated bool
}

// RepairAction records what was done to one file.
type RepairAction struct {
	Path          string `json:"path"`
	BackupPath    string `json:"backup_path"`
	BackupCreated bool   `json:"backup_created"`
	Lines         []int  `json:"lines"`
}

// Sanitizer scans and repairs configuration files on a host.
type Sanitizer struct {
	host host.Host
	cfg  Config
}

// New returns a sanitizer for h. Empty marker and suffix take defaults.
func New(h host.Host, cfg Config) *Sanitizer {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.BackupSuffix == "" {
		cfg.BackupSuffix = DefaultBackupSuffix
	}
	return &Sanitizer{host: h, cfg: cfg}
}

// Sanitize repairs every file under roots that holds a denylisted line.
// Each root is a file or a directory whose regular files are scanned one
// level deep. A file that cannot be read or written is logged and skipped;
// the returned error only reports invalid configuration.
func (s *Sanitizer) Sanitize(ctx context.Context, roots []string) ([]RepairAction, error) {
	return s.run(ctx, roots, false)
}

// Scan reports what Sanitize would change without writing anything.
func (s *Sanitizer) Scan(ctx context.Context, roots []string) ([]RepairAction, error) {
	return s.run(ctx, roots, true)
}

func (s *Sanitizer) run(ctx context.Context, roots []string, dryRun bool) ([]RepairAction, error) {
	if len(s.patterns()) == 0 {
		return nil, ErrNoDenylist
	}
	logger := telemetry.FromContext(ctx).NewComponentLogger("sanitizer")

	var (
		actions []RepairAction
		skipped *multierror.Error
	)
	for _, file := range s.files(ctx, roots) {
		action, err := s.repair(ctx, file, dryRun)
		if err != nil {
			skipped = multierror.Append(skipped, err)
			continue
		}
		if action != nil {
			logger.WithField("lines", action.Lines).Infof("disabled denylisted lines in %s", file)
			actions = append(actions, *action)
		}
	}

	if err := skipped.ErrorOrNil(); err != nil {
		logger.WithError(err).Warnf("skipped %d files", skipped.Len())
	}
	return actions, nil
}

// files expands roots into the regular files to scan. Missing roots are
// ignored; backups left by earlier runs are never scanned.
func (s *Sanitizer) files(ctx context.Context, roots []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] && !strings.HasSuffix(p, s.cfg.BackupSuffix) {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range roots {
		info, err := s.host.Stat(ctx, root)
		if err != nil {
			continue
		}
		if !info.IsDir {
			add(path.Clean(root))
			continue
		}
		entries, err := s.host.ReadDir(ctx, root)
		if err != nil {
			telemetry.FromContext(ctx).WithError(err).Debugf("cannot list %s", root)
			continue
		}
		for _, e := range entries {
			if !e.IsDir && e.Mode.IsRegular() {
				add(e.Path)
			}
		}
	}
	return out
}

// repair rewrites one file. It returns nil when nothing matched.
func (s *Sanitizer) repair(ctx context.Context, file string, dryRun bool) (*RepairAction, error) {
	info, err := s.host.Stat(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", file, err)
	}
	data, err := s.readFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	out, lines := Disable(string(data), s.patterns(), s.cfg.Marker)
	if len(lines) == 0 {
		return nil, nil
	}

	action := &RepairAction{
		Path:       file,
		BackupPath: file + s.cfg.BackupSuffix,
		Lines:      lines,
	}
	if dryRun {
		action.BackupCreated = !host.Exists(ctx, s.host, action.BackupPath)
		return action, nil
	}

	mode := info.Mode.Perm()
	if !host.Exists(ctx, s.host, action.BackupPath) {
		if err := s.host.WriteFile(ctx, action.BackupPath, data, mode, s.cfg.Elevated); err != nil {
			return nil, fmt.Errorf("backup %s: %w", file, err)
		}
		action.BackupCreated = true
	}
	if err := s.host.WriteFile(ctx, file, []byte(out), mode, s.cfg.Elevated); err != nil {
		return nil, fmt.Errorf("write %s: %w", file, err)
	}
	return action, nil
}

// readFile reads p directly and, when elevated, falls back to sudo cat for
// files the connecting user may not read.
func (s *Sanitizer) readFile(ctx context.Context, p string) ([]byte, error) {
	data, err := s.host.ReadFile(ctx, p)
	if err == nil || !s.cfg.Elevated || !errors.Is(err, fs.ErrPermission) {
		return data, err
	}
	res, runErr := s.host.Run(ctx, host.Command{Name: "cat", Args: []string{"--", p}, Elevated: true})
	if runErr != nil {
		return nil, runErr
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("sudo cat exited %d: %s: %w", res.ExitCode, strings.TrimSpace(res.Stderr), err)
	}
	return []byte(res.Stdout), nil
}

// Restore copies the backup of file back over it.
func (s *Sanitizer) Restore(ctx context.Context, file string) error {
	backup := file + s.cfg.BackupSuffix
	data, err := s.readFile(ctx, backup)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no backup for %s", file)
		}
		return fmt.Errorf("failed to read backup: %w", err)
	}
	info, err := s.host.Stat(ctx, backup)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}
	if err := s.host.WriteFile(ctx, file, data, info.Mode.Perm(), s.cfg.Elevated); err != nil {
		return fmt.Errorf("failed to restore %s: %w", file, err)
	}
	telemetry.FromContext(ctx).NewComponentLogger("sanitizer").Infof("restored %s from %s", file, backup)
	return nil
}

func (s *Sanitizer) patterns() []string {
	var out []string
	for _, p := range s.cfg.Denylist {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Disable prefixes marker to every line of content containing one of the
// patterns, ignoring case and skipping lines that are already comments. It returns
// the new content and the 1-based numbers of the disabled lines. All other
// bytes, including a missing final newline, are preserved.
func Disable(content string, patterns []string, marker string) (string, []int) {
	comment := strings.TrimSpace(marker)
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	split := strings.SplitAfter(content, "\n")

	var (
		b     strings.Builder
		lines []int
	)
	for i, line := range split {
		if matches(line, lowered, comment) {
			b.WriteString(marker)
			lines = append(lines, i+1)
		}
		b.WriteString(line)
	}
	return b.String(), lines
}

func matches(line string, patterns []string, comment string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || trimmed == "\n" {
		return false
	}
	if comment != "" && strings.HasPrefix(trimmed, comment) {
		return false
	}
	lower := strings.ToLower(line)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
