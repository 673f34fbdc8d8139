package ssh

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Stat implements host.Host.
func (c *Client) Stat(_ context.Context, p string) (*host.FileInfo, error) {
	sc, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	info, err := sc.Stat(p)
	if err != nil {
		return nil, err
	}
	return &host.FileInfo{Path: p, Size: info.Size(), Mode: info.Mode(), IsDir: info.IsDir()}, nil
}

// ReadFile implements host.Host.
func (c *Client) ReadFile(_ context.Context, p string) ([]byte, error) {
	sc, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	f, err := sc.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ReadDir implements host.Host.
func (c *Client) ReadDir(_ context.Context, p string) ([]host.FileInfo, error) {
	sc, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	entries, err := sc.ReadDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]host.FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, host.FileInfo{
			Path:  path.Join(p, e.Name()),
			Size:  e.Size(),
			Mode:  e.Mode(),
			IsDir: e.IsDir(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WriteFile implements host.Host. Unprivileged writes upload to a sibling
// temp file and rename it into place.
func (c *Client) WriteFile(ctx context.Context, p string, data []byte, mode fs.FileMode, elevated bool) error {
	if elevated && !c.root {
		return host.WriteElevated(ctx, c, p, data, mode)
	}

	sc, err := c.sftpClient()
	if err != nil {
		return err
	}

	tmp := path.Join(path.Dir(p), "."+path.Base(p)+".hostprov.tmp")
	f, err := sc.Create(tmp)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create %s: %w", tmp, err)}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = sc.Remove(tmp)
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to write %s: %w", tmp, err)}
	}
	if err := f.Close(); err != nil {
		_ = sc.Remove(tmp)
		return &TransportError{Op: "upload", Err: err}
	}
	if err := sc.Chmod(tmp, mode.Perm()); err != nil {
		_ = sc.Remove(tmp)
		return &TransportError{Op: "chmod", Err: err}
	}
	if err := sc.PosixRename(tmp, p); err != nil {
		_ = sc.Remove(tmp)
		return &TransportError{Op: "rename", Err: fmt.Errorf("failed to rename %s: %w", p, err)}
	}
	return nil
}

// MkdirAll implements host.Host.
func (c *Client) MkdirAll(ctx context.Context, p string, mode fs.FileMode, elevated bool) error {
	if elevated && !c.root {
		return host.MkdirElevated(ctx, c, p, mode)
	}
	sc, err := c.sftpClient()
	if err != nil {
		return err
	}
	if err := sc.MkdirAll(p); err != nil {
		return &TransportError{Op: "mkdir", Err: fmt.Errorf("failed to create directory %s: %w", p, err)}
	}
	return nil
}
