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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/release-engineering/cratevendor/cratevendor"
)

func resetFlags() {
	*configArg = ""
	*platformArg = ""
	*licenseMapArg = ""
	skipLicenseCheckArg = nil
}

func TestProcessArgs(t *testing.T) {
	defer resetFlags()
	dir := processArgs([]string{"cratevendor",
		"-platform", "aarch64-unknown-linux-gnu",
		"-skip-license-check", "ring",
		"-skip-license-check", "webpki",
		"src/vendor_libs"})
	if dir != "src/vendor_libs" {
		t.Errorf("dir: got %q", dir)
	}
	if *platformArg != "aarch64-unknown-linux-gnu" {
		t.Errorf("platform: got %q", *platformArg)
	}
	if !reflect.DeepEqual([]string(skipLicenseCheckArg), []string{"ring", "webpki"}) {
		t.Errorf("skip: got %v", skipLicenseCheckArg)
	}
}

func TestGetConfig(t *testing.T) {
	defer resetFlags()
	dir := t.TempDir()
	config := filepath.Join(dir, "cratevendor.yaml")
	err := os.WriteFile(config, []byte("licenses:\n  skip: [fuchsia-cprng]\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	*configArg = config
	*platformArg = "aarch64-unknown-linux-gnu"
	*licenseMapArg = "license_map.json"
	skipLicenseCheckArg = stringList{"ring"}

	cfg, err := getConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "aarch64-unknown-linux-gnu" {
		t.Errorf("platform: got %q", cfg.Platform)
	}
	if cfg.Paths.LicenseMap != "license_map.json" {
		t.Errorf("license map: got %q", cfg.Paths.LicenseMap)
	}
	if !reflect.DeepEqual(cfg.Licenses.Skip, []string{"fuchsia-cprng", "ring"}) {
		t.Errorf("skip: got %v", cfg.Licenses.Skip)
	}

	*configArg = filepath.Join(dir, "missing.yaml")
	if _, err := getConfig(); err == nil {
		t.Error("missing config: no error")
	}
}

func TestVerifyLicensesCommand(t *testing.T) {
	shorthand := filepath.Join(t.TempDir(), "licenses_used.txt")
	content := cratevendor.ShorthandHeader + "Apache-2.0\nBSD-3\nMIT\n"
	if err := os.WriteFile(shorthand, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	type tcase struct {
		name   string
		args   []string
		status int
		stderr string
	}
	tcases := []tcase{
		{
			name:   "match",
			args:   []string{"-license-file", shorthand, "-expected-licenses", "Apache-2.0 BSD MIT"},
			status: 0,
		},
		{
			name:   "mismatch",
			args:   []string{"-license-file", shorthand, "-expected-licenses", "Apache-2.0 MIT"},
			status: 1,
			stderr: "required but not listed: [BSD]",
		},
		{
			name:   "missing file",
			args:   []string{"-license-file", shorthand + ".missing"},
			status: 1,
		},
		{
			name:   "no file",
			args:   []string{"-expected-licenses", "MIT"},
			status: 2,
			stderr: "-license-file is required",
		},
		{
			name:   "bad flag",
			args:   []string{"-nosuch"},
			status: 2,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			status := verifyLicenses(tc.args, &stderr)
			if status != tc.status {
				t.Errorf("status: got %d, want %d (%s)", status, tc.status, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.stderr) {
				t.Errorf("stderr: %q does not contain %q", stderr.String(), tc.stderr)
			}
		})
	}
}
