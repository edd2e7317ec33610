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
	"os"
	"path/filepath"
	"testing"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// A sidecar as written by cargo vendor, before any hashes are known.
const initialSidecar = `{"files":{"stale.rs":"00"},"package":"0123456789abcdef"}`

// writeFiles creates files below dir from a map of relative path to
// content.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		pth := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(pth), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(pth, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// makeCrate creates a vendored crate directory with the given files
// and a checksum sidecar, returning its path.
func makeCrate(t *testing.T, vendor, name, version string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(vendor, EntryName(name, version))
	writeFiles(t, dir, files)
	writeFiles(t, dir, map[string]string{ChecksumFile: initialSidecar})
	return dir
}

// assertChecksumsValid fails the test unless the sidecar in dir
// matches the files present.
func assertChecksumsValid(t *testing.T, dir string) {
	t.Helper()
	problems, err := NewChecksumManager(OSFS{}).Verify(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Errorf("%s: checksum problems: %v", filepath.Base(dir), problems)
	}
}

func pkg(name, version, license string) metadata.Package {
	return metadata.Package{
		Name:    name,
		Version: version,
		License: license,
		ID:      name + " " + version + " (registry+https://github.com/rust-lang/crates.io-index)",
	}
}

// fakeResolver is a metadata.Resolver returning fixed lists.
type fakeResolver struct {
	all, used []metadata.Package

	// calls counts calls to Packages
	calls int
}

func (r *fakeResolver) Packages(filtered bool) ([]metadata.Package, error) {
	r.calls++
	if filtered {
		return r.used, nil
	}
	return r.all, nil
}
