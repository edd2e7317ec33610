// Copyright (C) 2019 Tim Waugh
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cratevendor

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// EntryName returns the vendored directory name for a crate, as
// created by 'cargo vendor --versioned-dirs'.
func EntryName(name, version string) string {
	return name + "-" + version
}

// SplitEntryName splits a vendored directory name into crate name and
// version. Crate names may contain '-' but not '.', and versions
// always begin with a number followed by '.', so the separator is the
// last '-' before the first '.'.
func SplitEntryName(dir string) (name, version string, err error) {
	firstDot := strings.Index(dir, ".")
	if firstDot < 0 {
		return "", "", fmt.Errorf("%s: no version", dir)
	}
	sep := strings.LastIndex(dir[:firstDot], "-")
	if sep <= 0 {
		return "", "", fmt.Errorf("%s: no version", dir)
	}
	name, version = dir[:sep], dir[sep+1:]
	if _, err := semver.NewVersion(version); err != nil {
		return "", "", errors.Wrapf(err, "%s", dir)
	}
	return name, version, nil
}

// VendorTree is the directory holding one subdirectory per vendored
// crate.
type VendorTree struct {
	fs   FS
	Path string
}

// NewVendorTree returns a VendorTree for the directory at path.
func NewVendorTree(fsys FS, path string) *VendorTree {
	return &VendorTree{fs: fsys, Path: path}
}

// EntryPath returns the path to the directory for a crate.
func (vt *VendorTree) EntryPath(name, version string) string {
	return filepath.Join(vt.Path, EntryName(name, version))
}

// HasEntry returns true if a directory named dir exists in the
// vendor tree.
func (vt *VendorTree) HasEntry(dir string) bool {
	return isDir(vt.fs, filepath.Join(vt.Path, dir))
}

// Crates returns a map of crate names to their vendored directory
// names, each list ordered from lowest to highest version.
// Directories which are not named like vendored crates are ignored.
func (vt *VendorTree) Crates() (map[string][]string, error) {
	entries, err := vt.fs.ReadDir(vt.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", vt.Path)
	}

	versions := make(map[string]semver.Collection)
	dirs := make(map[*semver.Version]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, version, err := SplitEntryName(entry.Name())
		if err != nil {
			log.Debugf("ignoring %s: %s", entry.Name(), err)
			continue
		}
		v, _ := semver.NewVersion(version)
		versions[name] = append(versions[name], v)
		dirs[v] = entry.Name()
	}

	result := make(map[string][]string, len(versions))
	for name, vs := range versions {
		sort.Sort(vs)
		list := make([]string, len(vs))
		for i, v := range vs {
			list[i] = dirs[v]
		}
		result[name] = list
	}
	return result, nil
}
