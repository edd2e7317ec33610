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
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// pipelineFixture creates a project directory with libc used and
// winapi unused on the configured platform, both attested.
func pipelineFixture(t *testing.T) (string, *fakeResolver) {
	t.Helper()
	dir := t.TempDir()
	vendor := filepath.Join(dir, "vendor")
	makeCrate(t, vendor, "libc", "0.2.80", map[string]string{
		"Cargo.toml":     "[package]\nname = \"libc\"\nversion = \"0.2.80\"\n",
		"src/lib.rs":     "pub type c_int = i32;\n",
		"LICENSE-MIT":    mitText,
		"LICENSE-APACHE": apacheText,
	})
	makeCrate(t, vendor, "winapi", "0.3.9", map[string]string{
		"Cargo.toml": winapiManifest,
		"src/lib.rs": "pub mod um;\n",
	})
	makeCrate(t, vendor, "memchr", "2.3.4", map[string]string{
		"Cargo.toml": "[package]\nname = \"memchr\"\nversion = \"2.3.4\"\n",
		"src/lib.rs": "\n",
		"COPYING":    "",
		"LICENSE":    mitText,
	})
	writeFiles(t, filepath.Join(dir, "crab", "crates"), map[string]string{
		"libc-0.2.80.toml":  "crate_name = \"libc\"\nversion = \"0.2.80\"\n",
		"memchr-2.3.4.toml": "crate_name = \"memchr\"\nversion = \"2.3.4\"\n",
	})

	r := &fakeResolver{
		all: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
			pkg("memchr", "2.3.4", "Unlicense/MIT"),
			pkg("winapi", "0.3.9", "MIT/Apache-2.0"),
			pkg("vendor_libs", "0.1.0", ""),
		},
		used: []metadata.Package{
			pkg("libc", "0.2.80", "MIT OR Apache-2.0"),
			pkg("memchr", "2.3.4", "Unlicense/MIT"),
			pkg("vendor_libs", "0.1.0", ""),
		},
	}
	return dir, r
}

func TestPipelineRun(t *testing.T) {
	dir, r := pipelineFixture(t)
	cfg := DefaultConfig()
	cfg.Paths.LicenseMap = "out/license_map.json"
	m := NewMetrics()
	p, err := NewPipeline(cfg, r, dir, OSFS{}, m)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(); err != nil {
		t.Fatal(err)
	}

	body, err := os.ReadFile(filepath.Join(dir, "vendor", "winapi-0.3.9", "src", "lib.rs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != StubCompileError.Body() {
		t.Errorf("winapi not emptied: %q", body)
	}

	shorthand, err := os.ReadFile(filepath.Join(dir, "licenses_used.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(shorthand) != ShorthandHeader+"Apache-2.0\nMIT\n" {
		t.Errorf("shorthand: got %q", shorthand)
	}
	licenseMap, err := os.ReadFile(filepath.Join(dir, "out", "license_map.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(licenseMap), "vendor/memchr-2.3.4/LICENSE") {
		t.Errorf("license map:\n%s", licenseMap)
	}

	for _, stage := range []string{"patch", "destroy", "license", "audit"} {
		if v := metricValue(t, m, "cratevendor_stage_success", stage); v != 1 {
			t.Errorf("%s: success %v", stage, v)
		}
	}

	problems, err := p.VerifyChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Errorf("checksum problems: %v", problems)
	}

	writeFiles(t, filepath.Join(dir, "vendor", "libc-0.2.80"), map[string]string{
		"src/lib.rs": "pub type c_int = i64;\n",
	})
	problems, err = p.VerifyChecksums()
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string][]string{"libc-0.2.80": {"src/lib.rs"}}
	if !reflect.DeepEqual(problems, expected) {
		t.Errorf("got %v, want %v", problems, expected)
	}
}

func TestPipelineUnknownTarget(t *testing.T) {
	defer mockExecCommand()()
	mockedTouch = "PATCHED"

	dir, r := pipelineFixture(t)
	writeFiles(t, filepath.Join(dir, "patches"), map[string]string{
		"libc/0001-fix.patch":   "",
		"nosuch/0001-fix.patch": "",
		"winapi/0001-fix.patch": "",
	})
	p, err := NewPipeline(DefaultConfig(), r, dir, OSFS{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Run()
	if errors.Cause(err) != ErrorUnknownTarget {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.calls != 0 {
		t.Errorf("resolver called %d times", r.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "vendor", "libc-0.2.80", "PATCHED")); err == nil {
		t.Error("libc patched")
	}
	if _, err := os.Stat(filepath.Join(dir, "licenses_used.txt")); err == nil {
		t.Error("license shorthand written")
	}
}

func TestPipelineLicenseFailure(t *testing.T) {
	dir, r := pipelineFixture(t)
	r.used[1].License = "GPL-3.0"
	r.used = append(r.used, pkg("unattested", "1.0.0", "GPL-3.0"))
	m := NewMetrics()
	p, err := NewPipeline(DefaultConfig(), r, dir, OSFS{}, m)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Run()
	if !IsKind(err, LicenseFailure) {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(err.(*AggregateError).Failures); n != 2 {
		t.Errorf("got %d failures:\n%s", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "licenses_used.txt")); err == nil {
		t.Error("license shorthand written")
	}
	if v := metricValue(t, m, "cratevendor_license_failures", ""); v != 2 {
		t.Errorf("license failures: %v", v)
	}
	if v := metricValue(t, m, "cratevendor_stage_success", "license"); v != 0 {
		t.Errorf("license success: %v", v)
	}
}

func TestPipelineComplianceFailure(t *testing.T) {
	dir, r := pipelineFixture(t)
	if err := os.Remove(filepath.Join(dir, "crab", "crates", "memchr-2.3.4.toml")); err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(DefaultConfig(), r, dir, OSFS{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Run()
	if !IsKind(err, ComplianceFailure) {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "memchr-2.3.4: no attestation") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestNewPipelineInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Licenses.Preference = []string{"GPL"}
	if _, err := NewPipeline(cfg, &fakeResolver{}, t.TempDir(), OSFS{}, nil); err == nil {
		t.Error("no error")
	}
}
