package host

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_Run(t *testing.T) {
	h := NewLocal()
	ctx := context.Background()

	res, err := h.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2; exit 3"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stdout = %q, Stderr = %q", res.Stdout, res.Stderr)
	}

	if _, err := Check(ctx, h, Command{Name: "sh", Args: []string{"-c", "exit 2"}}); ExitCode(err) != 2 {
		t.Errorf("Check() error = %v, want exit 2", err)
	}

	if _, err := h.Run(ctx, Command{Name: "definitely-not-a-command-hostprov"}); err == nil {
		t.Error("expected start error for missing executable")
	}
}

func TestLocal_RunWithEnvAndStdin(t *testing.T) {
	h := NewLocal()
	env := NewEnv(map[string]string{"HOSTPROV_TEST": "42"})

	res, err := h.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", `read line; echo "$HOSTPROV_TEST $line"`},
		Env:   env,
		Stdin: []byte("hello\n"),
		Dir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "42 hello" {
		t.Errorf("Stdout = %q, want %q", got, "42 hello")
	}
}

func TestLocal_LookPathWithEnv(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "node")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	h := NewLocal()
	ctx := context.Background()

	p, ok := h.LookPath(ctx, "node", NewEnv(map[string]string{"PATH": dir}))
	if !ok || p != bin {
		t.Errorf("LookPath() = %q, %v; want %q", p, ok, bin)
	}
	if _, ok := h.LookPath(ctx, "node", NewEnv(map[string]string{"PATH": t.TempDir()})); ok {
		t.Error("node should not resolve outside the env PATH")
	}
	if _, ok := h.LookPath(ctx, "sh", nil); !ok {
		t.Error("sh should resolve on the process PATH")
	}
}

func TestLocal_WriteFileAtomic(t *testing.T) {
	h := NewLocal()
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "config.yml")

	if err := h.MkdirAll(ctx, filepath.Dir(target), 0755, false); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := h.MkdirAll(ctx, filepath.Dir(target), 0755, false); err != nil {
		t.Fatalf("MkdirAll() on existing dir error = %v", err)
	}

	for _, content := range []string{"first\n", "second\n"} {
		if err := h.WriteFile(ctx, target, []byte(content), 0640, false); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		data, err := h.ReadFile(ctx, target)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != content {
			t.Errorf("content = %q, want %q", data, content)
		}
	}

	info, err := h.Stat(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode.Perm() != 0640 {
		t.Errorf("mode = %o, want 640", info.Mode.Perm())
	}

	entries, err := h.ReadDir(ctx, filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ReadDir() = %d entries, want 1 (no temp leftovers)", len(entries))
	}

	if _, err := h.Stat(ctx, filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat() error = %v, want ErrNotExist", err)
	}
}

func TestSudoArgv(t *testing.T) {
	name, args := SudoArgv(Command{
		Name: "npm",
		Args: []string{"install"},
		Env:  NewEnv(map[string]string{"PATH": "/opt/node/bin", "A": "1"}),
	})
	got := name + " " + strings.Join(args, " ")
	want := "sudo -n env A=1 PATH=/opt/node/bin npm install"
	if got != want {
		t.Errorf("SudoArgv() = %q, want %q", got, want)
	}

	name, args = SudoArgv(Command{Name: "systemctl", Args: []string{"daemon-reload"}})
	if got := name + " " + strings.Join(args, " "); got != "sudo -n systemctl daemon-reload" {
		t.Errorf("SudoArgv() = %q", got)
	}
}
