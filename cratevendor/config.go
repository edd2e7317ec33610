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
	"io/ioutil"
	"regexp"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// LicenseRecord is the license chosen for a crate, and the file to
// ship for attribution. LicenseFile is relative to the directory
// holding Cargo.toml.
type LicenseRecord struct {
	License     string `json:"license" yaml:"license"`
	LicenseFile string `json:"license_file,omitempty" yaml:"license_file"`
}

// LicenseSignature describes how to recognise a license file of one
// kind.
type LicenseSignature struct {
	// Kind is the license kind, as used in LicenseConfig.Supported
	// values.
	Kind string `yaml:"kind"`

	// Names are case-insensitive substrings of file names which
	// identify this kind, e.g. "-MIT" for LICENSE-MIT.
	Names []string `yaml:"names"`

	// Content are regular expressions matched against the file
	// content.
	Content []string `yaml:"content"`
}

// LicenseConfig holds the static tables used by the LicenseResolver.
type LicenseConfig struct {
	// Supported maps SPDX identifiers found in crate metadata to
	// the license kind they are recorded as.
	Supported map[string]string `yaml:"supported"`

	// Privileged is the license kind which is always chosen when
	// available, and which needs no license file.
	Privileged string `yaml:"privileged"`

	// Preference is the order in which license kinds are tried
	// when a crate offers a choice not including Privileged.
	Preference []string `yaml:"preference"`

	// FilePatterns are case-insensitive regular expressions for
	// license file names, most specific first.
	FilePatterns []string `yaml:"file_patterns"`

	// Signatures are checked in order to guess the kind of a
	// license file.
	Signatures []LicenseSignature `yaml:"signatures"`

	// Aliases maps crates whose license lives in another crate to
	// that crate. Aliased crates are not checked.
	Aliases map[string]string `yaml:"aliases"`

	// Overrides gives the license for crates whose license cannot
	// be discovered.
	Overrides map[string]LicenseRecord `yaml:"overrides"`

	// Attribution maps SPDX identifiers of attribution-only
	// licenses, which appear as "X AND <attribution>", to a
	// case-insensitive regular expression for their dedicated file.
	Attribution map[string]string `yaml:"attribution"`

	// Skip lists crates not to check.
	Skip []string `yaml:"skip"`
}

// DestroyConfig holds the static tables used by the CrateDestroyer.
type DestroyConfig struct {
	// NoOpStub lists crates which are emptied with a stub that
	// still compiles.
	NoOpStub []string `yaml:"noop_stub"`
}

// PathsConfig holds paths relative to the directory containing
// Cargo.toml.
type PathsConfig struct {
	Patches      string `yaml:"patches"`
	Vendor       string `yaml:"vendor"`
	Attestations string `yaml:"attestations"`

	// LicenseMap is where to write the license map, or "" for
	// nowhere.
	LicenseMap string `yaml:"license_map"`

	// Shorthand is where to write the list of license kinds used.
	Shorthand string `yaml:"shorthand"`
}

// Config is the static configuration of a pipeline. It is passed by
// value to each component and not modified after construction.
type Config struct {
	// Platform is the target triple used to decide which crates
	// are needed.
	Platform string `yaml:"platform"`

	// VirtualPackages are packages reported by the resolver which
	// are not vendored crates, such as the workspace itself.
	VirtualPackages []string `yaml:"virtual_packages"`

	Paths    PathsConfig   `yaml:"paths"`
	Licenses LicenseConfig `yaml:"licenses"`
	Destroy  DestroyConfig `yaml:"destroy"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Platform:        metadata.DefaultPlatform,
		VirtualPackages: []string{"vendor_libs"},
		Paths: PathsConfig{
			Patches:      "patches",
			Vendor:       "vendor",
			Attestations: "crab/crates",
			Shorthand:    "licenses_used.txt",
		},
		Licenses: LicenseConfig{
			Supported: map[string]string{
				"Apache-2.0":       "Apache-2.0",
				"MIT":              "MIT",
				"BSD-3-Clause":     "BSD-3",
				"ISC":              "ISC",
				"Unicode-DFS-2016": "unicode",
			},
			Privileged: "Apache-2.0",
			Preference: []string{"MIT", "BSD-3", "ISC"},
			FilePatterns: []string{
				`^license-mit$`,
				`^copyright$`,
				`^licen[cs]e.*$`,
			},
			Signatures: []LicenseSignature{
				{
					Kind:    "MIT",
					Names:   []string{"-MIT"},
					Content: []string{`\bMIT\b`, `Permission is hereby granted, free of charge`},
				},
				{
					Kind:    "Apache-2.0",
					Names:   []string{"-APACHE"},
					Content: []string{`Apache License`},
				},
				{
					Kind:    "BSD-3",
					Names:   []string{"-BSD"},
					Content: []string{`BSD 3-Clause`, `Neither the name of`},
				},
				{
					Kind:    "ISC",
					Names:   []string{"-ISC"},
					Content: []string{`\bISC\b`, `Permission to use, copy, modify, and/or distribute`},
				},
			},
			Aliases: map[string]string{
				"failure_derive":   "failure",
				"grpcio-compiler":  "grpcio",
				"grpcio-sys":       "grpcio",
				"rustyline-derive": "rustyline",
			},
			Overrides: map[string]LicenseRecord{},
			Attribution: map[string]string{
				"Unicode-DFS-2016": `^license-unicode.*$`,
			},
		},
	}
}

// LoadConfig returns the built-in configuration overlaid with the
// YAML file at path. Maps in the file are merged with the built-in
// maps; lists replace the built-in lists.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading configuration")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// Validate checks the configuration is self-consistent.
func (c Config) Validate() error {
	lc := c.Licenses
	kinds := make(map[string]struct{})
	for _, kind := range lc.Supported {
		kinds[kind] = struct{}{}
	}
	if _, ok := kinds[lc.Privileged]; !ok {
		return fmt.Errorf("privileged license %q is not supported", lc.Privileged)
	}
	for _, kind := range lc.Preference {
		if _, ok := kinds[kind]; !ok {
			return fmt.Errorf("preferred license %q is not supported", kind)
		}
	}
	for _, pattern := range lc.FilePatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return errors.Wrap(err, "license file pattern")
		}
	}
	for _, sig := range lc.Signatures {
		for _, pattern := range sig.Content {
			if _, err := regexp.Compile(pattern); err != nil {
				return errors.Wrapf(err, "%s signature", sig.Kind)
			}
		}
	}
	for spdx, pattern := range lc.Attribution {
		if _, ok := lc.Supported[spdx]; !ok {
			return fmt.Errorf("attribution license %q is not supported", spdx)
		}
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return errors.Wrapf(err, "%s file pattern", spdx)
		}
	}
	return nil
}

// isVirtual returns true for packages which are not vendored crates.
func (c Config) isVirtual(name string) bool {
	return contains(c.VirtualPackages, name)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
