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

// Package metadata loads the list of crates a Cargo.toml depends on,
// using 'cargo metadata'.
package metadata

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultPlatform is the target triple crates are filtered for unless
// another is configured.
const DefaultPlatform = "x86_64-unknown-linux-gnu"

// Package is a crate in the resolved dependency graph.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// ID is cargo's opaque package identifier.
	ID string `json:"id"`

	// License is the SPDX license expression, or "" if the crate
	// does not declare one.
	License string `json:"license"`

	ManifestPath string `json:"manifest_path"`

	// Source is "" for crates which are not from a registry, such
	// as the workspace itself.
	Source string `json:"source"`

	Dependencies json.RawMessage `json:"dependencies,omitempty"`
}

// Key returns the name-version identifier of the package, which is
// also the name of its vendored directory.
func (p Package) Key() string {
	return p.Name + "-" + p.Version
}

// Metadata is the subset of 'cargo metadata --format-version 1'
// output used here.
type Metadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
}

// Parse decodes 'cargo metadata' JSON output.
func Parse(r io.Reader) (*Metadata, error) {
	var md Metadata
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, errors.Wrap(err, "parsing cargo metadata")
	}
	return &md, nil
}

// Resolver is the interface that wraps the Packages method.
type Resolver interface {
	// Packages returns the resolved crates. If filtered is true
	// only crates used on the configured platform are returned,
	// otherwise every crate in the lock file is.
	Packages(filtered bool) ([]Package, error)
}

// execCommand is replaced by tests.
var execCommand = exec.Command

// Cargo is a Resolver which runs 'cargo metadata'. Results are cached
// so each variant is only computed once.
type Cargo struct {
	// Dir is the directory holding Cargo.toml.
	Dir string

	// Platform is the target triple to filter for.
	Platform string

	cache map[bool][]Package
}

// NewCargo returns a Resolver for the Cargo.toml in dir.
func NewCargo(dir, platform string) *Cargo {
	if platform == "" {
		platform = DefaultPlatform
	}
	return &Cargo{
		Dir:      dir,
		Platform: platform,
		cache:    make(map[bool][]Package),
	}
}

// Packages implements the Resolver interface.
func (c *Cargo) Packages(filtered bool) ([]Package, error) {
	if pkgs, ok := c.cache[filtered]; ok {
		return pkgs, nil
	}

	args := []string{
		"metadata", "--format-version", "1",
		"--manifest-path", filepath.Join(c.Dir, "Cargo.toml"),
	}
	if filtered {
		args = append(args, "--filter-platform", c.Platform)
	}
	cmd := execCommand("cargo", args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Stderr.Write(stderr.Bytes())
		return nil, errors.Wrap(err, "cargo metadata")
	}

	md, err := Parse(&stdout)
	if err != nil {
		return nil, err
	}
	c.cache[filtered] = md.Packages
	return md.Packages, nil
}
