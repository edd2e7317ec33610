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

	"github.com/pkg/errors"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// StubPolicy selects the body written into an emptied crate.
type StubPolicy int

const (
	// StubCompileError makes any attempt to build the crate fail.
	StubCompileError StubPolicy = iota

	// StubNoOp leaves a crate which builds but provides nothing,
	// for crates whose mere presence is required by other tools.
	StubNoOp
)

const compileErrorBody = `compile_error!("This crate cannot be built for this configuration.");` + "\n"

// Body returns the content of src/lib.rs for an emptied crate.
func (p StubPolicy) Body() string {
	if p == StubNoOp {
		return "// " + compileErrorBody
	}
	return compileErrorBody
}

// CrateDestroyer empties vendored crates which are not needed on the
// configured platform.
type CrateDestroyer struct {
	cfg       Config
	fs        FS
	resolver  metadata.Resolver
	vendor    *VendorTree
	checksums *ChecksumManager

	// Metrics, if not nil, counts emptied crates.
	Metrics *Metrics
}

// NewCrateDestroyer returns a CrateDestroyer for the vendor tree.
func NewCrateDestroyer(cfg Config, fsys FS, resolver metadata.Resolver, vendor *VendorTree, checksums *ChecksumManager) *CrateDestroyer {
	return &CrateDestroyer{
		cfg:       cfg,
		fs:        fsys,
		resolver:  resolver,
		vendor:    vendor,
		checksums: checksums,
	}
}

// StubPolicy returns the stub policy for the named crate.
func (d *CrateDestroyer) StubPolicy(name string) StubPolicy {
	if contains(d.cfg.Destroy.NoOpStub, name) {
		return StubNoOp
	}
	return StubCompileError
}

// Unused returns the packages which are in the lock file but not
// needed on the configured platform.
func (d *CrateDestroyer) Unused() ([]metadata.Package, error) {
	all, err := d.resolver.Packages(false)
	if err != nil {
		return nil, err
	}
	used, err := d.resolver.Packages(true)
	if err != nil {
		return nil, err
	}

	needed := make(map[string]struct{}, len(used))
	for _, pkg := range used {
		needed[pkg.Key()] = struct{}{}
	}

	var unused []metadata.Package
	for _, pkg := range all {
		if _, ok := needed[pkg.Key()]; ok || d.cfg.isVirtual(pkg.Name) {
			continue
		}
		unused = append(unused, pkg)
	}
	return unused, nil
}

// DestroyUnused empties every unused crate present in the vendor
// tree, returning the directory names of those emptied. Unused crates
// missing from the vendor tree are skipped.
func (d *CrateDestroyer) DestroyUnused() ([]string, error) {
	unused, err := d.Unused()
	if err != nil {
		return nil, err
	}

	var destroyed []string
	for _, pkg := range unused {
		dir := d.vendor.EntryPath(pkg.Name, pkg.Version)
		if !isDir(d.fs, dir) {
			log.Noticef("crate %s not found at %s", pkg.Name, dir)
			continue
		}
		if err := d.Destroy(dir, d.StubPolicy(pkg.Name)); err != nil {
			return destroyed, errors.Wrapf(err, "emptying %s", pkg.Key())
		}
		log.Infof("removed unused crate %s", pkg.Key())
		destroyed = append(destroyed, pkg.Key())
		d.Metrics.crateDestroyed()
	}
	return destroyed, nil
}

// Destroy replaces the sources of the crate in dir with src/lib.rs
// containing the stub body, strips its Cargo.toml, and regenerates
// its checksums. The checksum sidecar is kept, so keys other than
// the file hashes survive.
func (d *CrateDestroyer) Destroy(dir string, policy StubPolicy) error {
	manifestPath := filepath.Join(dir, CargoManifest)
	manifest, err := d.fs.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrorNoManifest, "%s", dir)
		}
		return err
	}
	stripped, err := StripManifest(manifest)
	if err != nil {
		return errors.Wrapf(err, "%s", manifestPath)
	}

	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		switch entry.Name() {
		case CargoManifest, ChecksumFile:
			continue
		}
		if err := d.fs.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	src := filepath.Join(dir, "src")
	if err := d.fs.MkdirAll(src, 0755); err != nil {
		return err
	}
	err = d.fs.WriteFile(filepath.Join(src, "lib.rs"), []byte(policy.Body()), 0644)
	if err != nil {
		return err
	}

	log.Debugf("%s\n%s", manifestPath, unifiedDiff("a/"+CargoManifest,
		"b/"+CargoManifest, string(manifest), string(stripped)))
	if err := d.fs.WriteFile(manifestPath, stripped, 0644); err != nil {
		return err
	}

	_, err = d.checksums.Regenerate(dir)
	return err
}
