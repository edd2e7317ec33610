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
	"time"

	"github.com/pkg/errors"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// Pipeline runs every stage of curating the vendor tree, in order.
type Pipeline struct {
	cfg      Config
	dir      string
	fs       FS
	resolver metadata.Resolver

	Checksums *ChecksumManager
	Vendor    *VendorTree
	Patches   *PatchEngine
	Destroyer *CrateDestroyer
	Licenses  *LicenseResolver
	Auditor   *ComplianceAuditor
	Metrics   *Metrics
}

// NewPipeline returns a Pipeline for the Cargo.toml in dir. Paths in
// cfg are relative to dir. If m is nil no metrics are recorded.
func NewPipeline(cfg Config, resolver metadata.Resolver, dir string, fsys FS, m *Metrics) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		dir:      dir,
		fs:       fsys,
		resolver: resolver,
		Metrics:  m,
	}
	p.Checksums = NewChecksumManager(fsys)
	p.Vendor = NewVendorTree(fsys, p.path(cfg.Paths.Vendor))
	p.Patches = NewPatchEngine(fsys, p.Vendor, p.Checksums)
	p.Patches.Metrics = m
	p.Destroyer = NewCrateDestroyer(cfg, fsys, resolver, p.Vendor, p.Checksums)
	p.Destroyer.Metrics = m
	licenses, err := NewLicenseResolver(cfg, fsys, dir, p.Vendor)
	if err != nil {
		return nil, err
	}
	p.Licenses = licenses
	p.Auditor = NewComplianceAuditor(cfg, fsys, p.path(cfg.Paths.Attestations))
	return p, nil
}

func (p *Pipeline) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.dir, rel)
}

// Run applies patches, empties unused crates, checks licenses and
// audits attestations. It stops at the first stage that fails; a
// patch directory naming an unknown crate stops it before any patch
// is applied.
func (p *Pipeline) Run() error {
	start := time.Now()
	_, err := p.Patches.Apply(p.path(p.cfg.Paths.Patches))
	p.Metrics.stage("patch", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = p.Destroyer.DestroyUnused()
	p.Metrics.stage("destroy", start, err)
	if err != nil {
		return err
	}

	pkgs, err := p.resolver.Packages(true)
	if err != nil {
		return err
	}

	start = time.Now()
	err = p.checkLicenses(pkgs)
	p.Metrics.stage("license", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = p.Auditor.Audit(pkgs)
	p.Metrics.stage("audit", start, err)
	return err
}

func (p *Pipeline) checkLicenses(pkgs []metadata.Package) error {
	result, err := p.Licenses.Resolve(pkgs)
	if err != nil {
		return err
	}
	if p.cfg.Paths.LicenseMap != "" {
		err = p.Licenses.WriteLicenseMap(result, p.path(p.cfg.Paths.LicenseMap))
		if err != nil {
			return err
		}
	}
	if p.cfg.Paths.Shorthand != "" {
		err = p.Licenses.WriteShorthand(result, p.path(p.cfg.Paths.Shorthand))
		if err != nil {
			return err
		}
	}
	log.Infof("licenses in use: %v", result.Used)
	return nil
}

// VerifyChecksums checks the checksum sidecar of every crate in the
// vendor tree, returning the problem files for each crate directory
// which has any. Directories without a sidecar are skipped.
func (p *Pipeline) VerifyChecksums() (map[string][]string, error) {
	entries, err := p.fs.ReadDir(p.Vendor.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p.Vendor.Path)
	}

	problems := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mismatches, err := p.Checksums.Verify(filepath.Join(p.Vendor.Path, entry.Name()))
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return nil, err
		}
		if len(mismatches) > 0 {
			problems[entry.Name()] = mismatches
		}
	}
	return problems, nil
}
