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

	"github.com/BurntSushi/toml"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// Attestation is the audit record kept for one crate.
type Attestation struct {
	CrateName string                 `toml:"crate_name"`
	Version   string                 `toml:"version"`
	Common    map[string]interface{} `toml:"common"`
}

// truthy reports whether a decoded TOML value is set to something
// other than false, zero or empty.
func truthy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case int64:
		return value != 0
	case float64:
		return value != 0
	case []interface{}:
		return len(value) > 0
	case []map[string]interface{}:
		return len(value) > 0
	case map[string]interface{}:
		return len(value) > 0
	}
	return true
}

// Denied returns true if the record carries a deny trait.
func (a *Attestation) Denied() bool {
	return truthy(a.Common["deny"])
}

// ComplianceAuditor checks every crate has an attestation record
// which matches it and does not deny it.
type ComplianceAuditor struct {
	cfg Config
	fs  FS

	// Dir holds one {name}-{version}.toml record per crate.
	Dir string
}

// NewComplianceAuditor returns a ComplianceAuditor reading records
// from dir.
func NewComplianceAuditor(cfg Config, fsys FS, dir string) *ComplianceAuditor {
	return &ComplianceAuditor{cfg: cfg, fs: fsys, Dir: dir}
}

// RecordPath returns the path of the attestation record for pkg.
func (a *ComplianceAuditor) RecordPath(pkg metadata.Package) string {
	return filepath.Join(a.Dir, pkg.Key()+".toml")
}

// check returns the reason pkg fails the audit, or "".
func (a *ComplianceAuditor) check(pkg metadata.Package) string {
	data, err := a.fs.ReadFile(a.RecordPath(pkg))
	if err != nil {
		if os.IsNotExist(err) {
			return "no attestation"
		}
		return "unreadable attestation: " + err.Error()
	}

	var att Attestation
	if err := toml.Unmarshal(data, &att); err != nil {
		return "unreadable attestation: " + err.Error()
	}

	if att.CrateName != pkg.Name || att.Version != pkg.Version {
		return "identity mismatch"
	}
	if att.Denied() {
		return "denied by policy"
	}
	return ""
}

// Audit checks every crate in pkgs. All failing crates are logged and
// returned together in an *AggregateError of kind ComplianceFailure.
func (a *ComplianceAuditor) Audit(pkgs []metadata.Package) error {
	var fails failures
	for _, pkg := range pkgs {
		if a.cfg.isVirtual(pkg.Name) {
			continue
		}
		if reason := a.check(pkg); reason != "" {
			fails.add(pkg.Key(), "%s", reason)
		}
	}

	if len(fails) > 0 {
		log.Error("failed attestation audit:")
		for _, f := range fails {
			log.Errorf("  %s", f)
		}
	}
	return fails.err(ComplianceFailure)
}
