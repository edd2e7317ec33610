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
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

const winapiManifest = `[package]
name = "winapi"
version = "0.3.9"
build = "build.rs"
license = "MIT/Apache-2.0"

[dependencies]
winapi-i686-pc-windows-gnu = "0.4"

[features]
std = []
winuser = ["windef"]
`

func destroyFixture(t *testing.T, cfg Config, r metadata.Resolver) (*CrateDestroyer, string) {
	t.Helper()
	vendor := filepath.Join(t.TempDir(), "vendor")
	fsys := OSFS{}
	tree := NewVendorTree(fsys, vendor)
	d := NewCrateDestroyer(cfg, fsys, r, tree, NewChecksumManager(fsys))
	return d, vendor
}

func TestStubPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Destroy.NoOpStub = []string{"winapi-build"}
	d, _ := destroyFixture(t, cfg, &fakeResolver{})

	if d.StubPolicy("winapi") != StubCompileError {
		t.Error("winapi: expected compile error stub")
	}
	if d.StubPolicy("winapi-build") != StubNoOp {
		t.Error("winapi-build: expected no-op stub")
	}
	if !strings.HasPrefix(StubCompileError.Body(), "compile_error!(") {
		t.Errorf("unexpected body %q", StubCompileError.Body())
	}
	if StubNoOp.Body() != "// "+StubCompileError.Body() {
		t.Errorf("unexpected no-op body %q", StubNoOp.Body())
	}
}

func TestUnused(t *testing.T) {
	r := &fakeResolver{
		all: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
			pkg("winapi", "0.2.8", "MIT"),
			pkg("winapi", "0.3.9", "MIT/Apache-2.0"),
			pkg("vendor_libs", "0.1.0", ""),
		},
		used: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
			pkg("winapi", "0.2.8", "MIT"),
		},
	}
	d, _ := destroyFixture(t, DefaultConfig(), r)
	unused, err := d.Unused()
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, p := range unused {
		keys = append(keys, p.Key())
	}
	// Only the version not needed is unused, not every version of
	// the crate.
	expected := []string{"winapi-0.3.9"}
	if !reflect.DeepEqual(keys, expected) {
		t.Errorf("got %v, want %v", keys, expected)
	}
}

func TestDestroyUnused(t *testing.T) {
	r := &fakeResolver{
		all: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
			pkg("winapi", "0.3.9", "MIT/Apache-2.0"),
			pkg("winapi-build", "0.1.1", "MIT"),
			pkg("redox_syscall", "0.1.57", "MIT"),
		},
		used: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
		},
	}
	cfg := DefaultConfig()
	cfg.Destroy.NoOpStub = []string{"winapi-build"}
	d, vendor := destroyFixture(t, cfg, r)
	m := NewMetrics()
	d.Metrics = m

	libc := makeCrate(t, vendor, "libc", "0.2.80", map[string]string{
		"Cargo.toml": "[package]\nname = \"libc\"\nversion = \"0.2.80\"\n",
		"src/lib.rs": "pub type c_int = i32;\n",
	})
	winapi := makeCrate(t, vendor, "winapi", "0.3.9", map[string]string{
		"Cargo.toml":           winapiManifest,
		"build.rs":             "fn main() {}\n",
		"src/lib.rs":           "pub mod um;\n",
		"src/um/mod.rs":        "pub mod winuser;\n",
		"LICENSE-MIT":          "MIT\n",
		".cargo_vcs_info.json": "{}\n",
	})
	build := makeCrate(t, vendor, "winapi-build", "0.1.1", map[string]string{
		"Cargo.toml": "[package]\nname = \"winapi-build\"\nversion = \"0.1.1\"\n",
		"src/lib.rs": "pub fn link() {}\n",
	})
	// redox_syscall is not vendored

	destroyed, err := d.DestroyUnused()
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"winapi-0.3.9", "winapi-build-0.1.1"}
	if !reflect.DeepEqual(destroyed, expected) {
		t.Errorf("destroyed: got %v, want %v", destroyed, expected)
	}
	if got := metricValue(t, m, "cratevendor_crates_destroyed_total", ""); got != 2 {
		t.Errorf("metrics: got %v crates destroyed", got)
	}

	// Untouched
	content, err := os.ReadFile(filepath.Join(libc, "src", "lib.rs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "pub type c_int = i32;\n" {
		t.Errorf("libc modified: %q", content)
	}

	var files []string
	err = walkFiles(OSFS{}, winapi, func(rel string) error {
		files = append(files, rel)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	expectedFiles := []string{ChecksumFile, "Cargo.toml", "src/lib.rs"}
	if !reflect.DeepEqual(files, expectedFiles) {
		t.Errorf("winapi files: got %v, want %v", files, expectedFiles)
	}

	for dir, policy := range map[string]StubPolicy{
		winapi: StubCompileError,
		build:  StubNoOp,
	} {
		body, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != policy.Body() {
			t.Errorf("%s: got body %q", filepath.Base(dir), body)
		}
		assertChecksumsValid(t, dir)

		sidecar, err := NewChecksumManager(OSFS{}).Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		var pkgHash string
		if err := json.Unmarshal(sidecar["package"], &pkgHash); err != nil {
			t.Fatal(err)
		}
		if pkgHash != "0123456789abcdef" {
			t.Errorf("%s: package hash lost: %q", filepath.Base(dir), pkgHash)
		}
	}

	manifest, err := os.ReadFile(filepath.Join(winapi, "Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, unwanted := range []string{"build.rs", "[dependencies]", "windef"} {
		if strings.Contains(string(manifest), unwanted) {
			t.Errorf("manifest still contains %q:\n%s", unwanted, manifest)
		}
	}
	if !strings.Contains(string(manifest), stubDescription) {
		t.Errorf("manifest has no stub description:\n%s", manifest)
	}
}

func TestDestroyNoManifest(t *testing.T) {
	d, vendor := destroyFixture(t, DefaultConfig(), &fakeResolver{})
	dir := makeCrate(t, vendor, "foo", "1.0.0", map[string]string{
		"src/lib.rs": "\n",
	})
	err := d.Destroy(dir, StubCompileError)
	if err == nil {
		t.Fatal("no error")
	}
	if !strings.Contains(err.Error(), ErrorNoManifest.Error()) {
		t.Errorf("unexpected error: %s", err)
	}

	// Nothing removed
	if _, err := os.Stat(filepath.Join(dir, "src", "lib.rs")); err != nil {
		t.Error(err)
	}
}
