package runtime

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-sandbox/errors"
)

// FileReader loads module bytes for CompileFromPath. Implementations belong
// to the embedding host; the runtime never touches the filesystem itself
// when one is configured.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileReaderFunc adapts a function to FileReader.
type FileReaderFunc func(ctx context.Context, path string) ([]byte, error)

func (f FileReaderFunc) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// hostReader reads any path the process can open.
type hostReader struct{}

func (hostReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// dirReader resolves paths inside a fixed set of directories through
// *os.Root handles.
type dirReader struct {
	dirs []moduleDir
}

type moduleDir struct {
	abs  string
	root *os.Root
}

func openDirReader(dirs []string) (*dirReader, error) {
	d := &dirReader{}
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = d.Close()
			return nil, errors.IO("resolve module directory "+dir, err)
		}
		root, err := os.OpenRoot(abs)
		if err != nil {
			_ = d.Close()
			return nil, errors.IO("open module directory "+dir, err)
		}
		d.dirs = append(d.dirs, moduleDir{abs: abs, root: root})
	}
	return d, nil
}

// ReadFile accepts paths relative to a module directory, or absolute paths
// that lie beneath one. Directories are tried in order.
func (d *dirReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	if !filepath.IsAbs(path) && !filepath.IsLocal(path) {
		return nil, escapeError(path, nil)
	}
	var lastErr error
	for _, dir := range d.dirs {
		rel, ok := dir.relative(path)
		if !ok {
			continue
		}
		data, err := dir.root.ReadFile(rel)
		if err == nil {
			return data, nil
		}
		if isEscape(err) {
			return nil, escapeError(path, err)
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, errors.PermissionDenied(errors.PhaseLoad, "path "+path+" is outside the module directories", nil)
	}
	return nil, lastErr
}

func (m moduleDir) relative(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return path, true
	}
	rel, err := filepath.Rel(m.abs, path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

func (d *dirReader) Close() error {
	var err error
	for _, dir := range d.dirs {
		err = multierr.Append(err, dir.root.Close())
	}
	return err
}

func escapeError(path string, cause error) error {
	return errors.PermissionDenied(errors.PhaseLoad, "path "+path+" escapes the module directories", cause)
}

// isEscape reports an os.Root rejection of a path that leaves the root.
func isEscape(err error) bool {
	var pe *fs.PathError
	if stderrors.As(err, &pe) {
		err = pe.Err
	}
	return err != nil && strings.Contains(err.Error(), "escapes")
}
