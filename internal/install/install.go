// Package install writes files idempotently with fixed ownership and mode
// and reports whether anything on disk changed.
package install

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// File is a desired file on disk.
type File struct {
	Path    string
	Content []byte
	Mode    fs.FileMode
	// Owner and Group are names; empty leaves ownership untouched.
	Owner string
	Group string
}

// Ensure makes the file at f.Path match f and reports whether it had to
// write, chmod or chown anything.
func Ensure(f File) (changed bool, err error) {
	uid, gid, err := resolveOwnership(f.Owner, f.Group)
	if err != nil {
		return false, err
	}

	var st unix.Stat_t
	statErr := unix.Stat(f.Path, &st)
	if statErr != nil && !errors.Is(statErr, unix.ENOENT) {
		return false, fmt.Errorf("stat %s: %w", f.Path, statErr)
	}

	if statErr == nil {
		current, err := os.ReadFile(f.Path)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", f.Path, err)
		}
		if bytes.Equal(current, f.Content) {
			return fixMetadata(f, &st, uid, gid)
		}
	}

	if err := writeAtomic(f, uid, gid); err != nil {
		return false, err
	}
	return true, nil
}

// fixMetadata corrects mode and ownership of an existing file whose
// content already matches.
func fixMetadata(f File, st *unix.Stat_t, uid, gid int) (bool, error) {
	changed := false
	if fs.FileMode(st.Mode)&fs.ModePerm != f.Mode.Perm() {
		if err := os.Chmod(f.Path, f.Mode.Perm()); err != nil {
			return false, fmt.Errorf("chmod %s: %w", f.Path, err)
		}
		changed = true
	}
	if (uid >= 0 && int(st.Uid) != uid) || (gid >= 0 && int(st.Gid) != gid) {
		if err := os.Lchown(f.Path, uid, gid); err != nil {
			return false, fmt.Errorf("chown %s: %w", f.Path, err)
		}
		changed = true
	}
	return changed, nil
}

func writeAtomic(f File, uid, gid int) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".hostkeep-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", f.Path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(f.Content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(f.Mode.Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if uid >= 0 || gid >= 0 {
		if err := tmp.Chown(uid, gid); err != nil {
			tmp.Close()
			return fmt.Errorf("chown %s: %w", tmpName, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("installing %s: %w", f.Path, err)
	}
	return nil
}

// resolveOwnership maps owner/group names to ids; -1 means "leave as is".
func resolveOwnership(owner, group string) (uid, gid int, err error) {
	uid, gid = -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return 0, 0, fmt.Errorf("looking up user %s: %w", owner, err)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return 0, 0, fmt.Errorf("user %s has non-numeric uid %q", owner, u.Uid)
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, fmt.Errorf("looking up group %s: %w", group, err)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return 0, 0, fmt.Errorf("group %s has non-numeric gid %q", group, g.Gid)
		}
	}
	return uid, gid, nil
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
