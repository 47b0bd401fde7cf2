package wasi

import (
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"github.com/tetratelabs/wazero/experimental/sysfs"
	"github.com/tetratelabs/wazero/sys"
)

// RootFS exposes a host directory to the guest through an *os.Root. Every
// lookup is resolved by the root itself, so neither ".." components nor
// symlinks can reach outside the granted directory.
type RootFS struct {
	experimentalsys.UnimplementedFS

	root *os.Root
	read *sysfs.AdaptFS
}

// NewRootFS wraps root. The caller keeps ownership of root and closes it.
func NewRootFS(root *os.Root) *RootFS {
	return &RootFS{root: root, read: &sysfs.AdaptFS{FS: root.FS()}}
}

// String implements fmt.Stringer
func (r *RootFS) String() string {
	return r.root.Name()
}

func relPath(name string) string {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return path.Clean(name)
}

const writeFlags = experimentalsys.O_WRONLY | experimentalsys.O_RDWR | experimentalsys.O_CREAT |
	experimentalsys.O_TRUNC | experimentalsys.O_APPEND

// OpenFile implements experimentalsys.FS. Read-only opens, including
// directories, go through the root's fs.FS view. Writable opens use the
// root directly and return an os.File backed handle.
func (r *RootFS) OpenFile(name string, flag experimentalsys.Oflag, perm fs.FileMode) (experimentalsys.File, experimentalsys.Errno) {
	name = relPath(name)

	if flag&experimentalsys.O_NOFOLLOW != 0 {
		if info, err := r.root.Lstat(name); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return nil, experimentalsys.ELOOP
		}
	}

	if flag&writeFlags == 0 {
		return r.read.OpenFile(name, flag, perm)
	}
	if flag&experimentalsys.O_DIRECTORY != 0 {
		return nil, experimentalsys.EISDIR
	}

	f, err := r.root.OpenFile(name, toOSFlag(flag), perm)
	if err != nil {
		return nil, toErrno(err)
	}
	return &rootFile{f: f, append: flag&experimentalsys.O_APPEND != 0}, 0
}

func toOSFlag(flag experimentalsys.Oflag) int {
	var out int
	switch {
	case flag&experimentalsys.O_RDWR != 0:
		out = os.O_RDWR
	case flag&experimentalsys.O_WRONLY != 0:
		out = os.O_WRONLY
	default:
		out = os.O_RDWR
	}
	if flag&experimentalsys.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if flag&experimentalsys.O_CREAT != 0 {
		out |= os.O_CREATE
	}
	if flag&experimentalsys.O_EXCL != 0 {
		out |= os.O_EXCL
	}
	if flag&experimentalsys.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	if flag&experimentalsys.O_SYNC != 0 {
		out |= os.O_SYNC
	}
	return out
}

// toErrno maps host errors to WASI errnos. Escapes rejected by os.Root
// surface as EPERM.
func toErrno(err error) experimentalsys.Errno {
	if err == nil {
		return 0
	}
	errno := experimentalsys.UnwrapOSError(err)
	if errno == experimentalsys.EIO && strings.Contains(err.Error(), "escapes") {
		return experimentalsys.EPERM
	}
	return errno
}

// Lstat implements experimentalsys.FS
func (r *RootFS) Lstat(name string) (sys.Stat_t, experimentalsys.Errno) {
	info, err := r.root.Lstat(relPath(name))
	if err != nil {
		return sys.Stat_t{}, toErrno(err)
	}
	return sys.NewStat_t(info), 0
}

// Stat implements experimentalsys.FS
func (r *RootFS) Stat(name string) (sys.Stat_t, experimentalsys.Errno) {
	info, err := r.root.Stat(relPath(name))
	if err != nil {
		return sys.Stat_t{}, toErrno(err)
	}
	return sys.NewStat_t(info), 0
}

// Mkdir implements experimentalsys.FS
func (r *RootFS) Mkdir(name string, perm fs.FileMode) experimentalsys.Errno {
	return toErrno(r.root.Mkdir(relPath(name), perm))
}

// Chmod implements experimentalsys.FS
func (r *RootFS) Chmod(name string, perm fs.FileMode) experimentalsys.Errno {
	return toErrno(r.root.Chmod(relPath(name), perm))
}

// Rename implements experimentalsys.FS
func (r *RootFS) Rename(from, to string) experimentalsys.Errno {
	return toErrno(r.root.Rename(relPath(from), relPath(to)))
}

// Rmdir implements experimentalsys.FS
func (r *RootFS) Rmdir(name string) experimentalsys.Errno {
	name = relPath(name)
	info, err := r.root.Lstat(name)
	if err != nil {
		return toErrno(err)
	}
	if !info.IsDir() {
		return experimentalsys.ENOTDIR
	}
	return toErrno(r.root.Remove(name))
}

// Unlink implements experimentalsys.FS
func (r *RootFS) Unlink(name string) experimentalsys.Errno {
	name = relPath(name)
	info, err := r.root.Lstat(name)
	if err != nil {
		return toErrno(err)
	}
	if info.IsDir() {
		return experimentalsys.EISDIR
	}
	return toErrno(r.root.Remove(name))
}

// Readlink implements experimentalsys.FS
func (r *RootFS) Readlink(name string) (string, experimentalsys.Errno) {
	target, err := r.root.Readlink(relPath(name))
	if err != nil {
		return "", toErrno(err)
	}
	return target, 0
}

// Symlink implements experimentalsys.FS. The target is stored verbatim;
// following it later is still confined by the root.
func (r *RootFS) Symlink(oldName, link string) experimentalsys.Errno {
	return toErrno(r.root.Symlink(oldName, relPath(link)))
}

// Link implements experimentalsys.FS
func (r *RootFS) Link(oldName, newName string) experimentalsys.Errno {
	return toErrno(r.root.Link(relPath(oldName), relPath(newName)))
}

// rootFile is a writable handle opened through the root.
type rootFile struct {
	experimentalsys.UnimplementedFile

	f      *os.File
	append bool
	closed bool
}

func (f *rootFile) IsDir() (bool, experimentalsys.Errno) {
	info, err := f.f.Stat()
	if err != nil {
		return false, toErrno(err)
	}
	return info.IsDir(), 0
}

func (f *rootFile) IsAppend() bool {
	return f.append
}

func (f *rootFile) Stat() (sys.Stat_t, experimentalsys.Errno) {
	info, err := f.f.Stat()
	if err != nil {
		return sys.Stat_t{}, toErrno(err)
	}
	return sys.NewStat_t(info), 0
}

func (f *rootFile) Read(buf []byte) (int, experimentalsys.Errno) {
	n, err := f.f.Read(buf)
	if stderrors.Is(err, io.EOF) {
		err = nil
	}
	return n, toErrno(err)
}

func (f *rootFile) Pread(buf []byte, off int64) (int, experimentalsys.Errno) {
	n, err := f.f.ReadAt(buf, off)
	if stderrors.Is(err, io.EOF) {
		err = nil
	}
	return n, toErrno(err)
}

func (f *rootFile) Seek(offset int64, whence int) (int64, experimentalsys.Errno) {
	pos, err := f.f.Seek(offset, whence)
	return pos, toErrno(err)
}

func (f *rootFile) Write(buf []byte) (int, experimentalsys.Errno) {
	n, err := f.f.Write(buf)
	return n, toErrno(err)
}

func (f *rootFile) Pwrite(buf []byte, off int64) (int, experimentalsys.Errno) {
	if f.append {
		return 0, experimentalsys.EINVAL
	}
	n, err := f.f.WriteAt(buf, off)
	return n, toErrno(err)
}

func (f *rootFile) Truncate(size int64) experimentalsys.Errno {
	return toErrno(f.f.Truncate(size))
}

func (f *rootFile) Sync() experimentalsys.Errno {
	return toErrno(f.f.Sync())
}

func (f *rootFile) Datasync() experimentalsys.Errno {
	return f.Sync()
}

func (f *rootFile) Close() experimentalsys.Errno {
	if f.closed {
		return 0
	}
	f.closed = true
	return toErrno(f.f.Close())
}
