package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are never part of a source digest.
var skipDirs = map[string]bool{
	".git":        true,
	"__pycache__": true,
}

// DigestSources hashes the paths, modes and contents of every regular file
// under roots. Walk order is lexical, so the digest is stable.
func DigestSources(roots []string) (string, error) {
	h := sha256.New()
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasSuffix(path, ".pyc") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "%s\x00%o\x00", path, info.Mode().Perm())
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(h, f)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("digesting %s: %w", root, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SourceState remembers the last applied source digest per service.
type SourceState struct {
	Dir string
}

func (s SourceState) path(name string) string {
	return filepath.Join(s.Dir, name+".sources")
}

// Check digests roots and compares against the recorded digest. A service
// with no record yet is reported unchanged; the caller records the digest
// after a successful apply.
func (s SourceState) Check(name string, roots []string) (digest string, changed bool, err error) {
	digest, err = DigestSources(roots)
	if err != nil {
		return "", false, err
	}
	prev, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return digest, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading source state: %w", err)
	}
	return digest, strings.TrimSpace(string(prev)) != digest, nil
}

// Record stores digest as the applied state for name.
func (s SourceState) Record(name, digest string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, []byte(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing source state: %w", err)
	}
	return os.Rename(tmp, s.path(name))
}
