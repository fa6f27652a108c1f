// Package hostos identifies the running distribution from os-release so
// supervisors can be gated on it.
package hostos

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Release is the subset of os-release(5) hostkeep cares about.
type Release struct {
	ID        string // "ubuntu"
	Name      string // "Ubuntu"
	VersionID string // "16.04"
}

// releaseFiles are tried in order, as documented in os-release(5).
var releaseFiles = []string{"/etc/os-release", "/usr/lib/os-release"}

// Detect reads the host's os-release file.
func Detect() (Release, error) {
	for _, path := range releaseFiles {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Release{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return Parse(data), nil
	}
	return Release{}, errors.New("no os-release file found")
}

// Parse decodes os-release KEY=VALUE lines. Unknown keys, comments and
// malformed lines are ignored.
func Parse(data []byte) Release {
	var r Release
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = unquote(value)
		switch key {
		case "ID":
			r.ID = value
		case "NAME":
			r.Name = value
		case "VERSION_ID":
			r.VersionID = value
		}
	}
	return r
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		if s, err := strconv.Unquote(`"` + v[1:len(v)-1] + `"`); err == nil {
			return s
		}
		return v[1 : len(v)-1]
	}
	return v
}

// Matches reports whether r satisfies a distribution/version gate.
// distribution matches NAME or ID case-insensitively; version is a prefix of
// VERSION_ID, so "16" accepts "16.04". Empty gate fields match anything.
func (r Release) Matches(distribution, version string) bool {
	if distribution != "" &&
		!strings.EqualFold(distribution, r.Name) &&
		!strings.EqualFold(distribution, r.ID) {
		return false
	}
	if version != "" && !strings.HasPrefix(r.VersionID, version) {
		return false
	}
	return true
}

func (r Release) String() string {
	name := r.Name
	if name == "" {
		name = r.ID
	}
	if r.VersionID == "" {
		return name
	}
	return name + " " + r.VersionID
}
