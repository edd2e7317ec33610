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
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

// ShorthandHeader begins the file listing the license kinds in use.
const ShorthandHeader = `# License kinds used by the vendored crates, one per line.
# This file is generated by cratevendor; do not edit it by hand.
`

// licenseProblem is a reason a crate has no acceptable license. It is
// collected rather than returned.
type licenseProblem string

func (p licenseProblem) Error() string { return string(p) }

func problemf(format string, args ...interface{}) error {
	return licenseProblem(fmt.Sprintf(format, args...))
}

// LicenseResult is the outcome of a successful license check.
type LicenseResult struct {
	// Map holds the license chosen for each checked crate, by
	// crate name.
	Map map[string]LicenseRecord

	// Used is the sorted list of license kinds in use.
	Used []string
}

// choice is the license chosen for one crate.
type choice struct {
	record LicenseRecord

	// kinds are the license kinds this crate adds to those in use
	kinds []string

	// compound is true if an attribution license was required as
	// well as a permissive one
	compound bool
}

// LicenseResolver chooses a license for each crate.
type LicenseResolver struct {
	cfg         Config
	lc          LicenseConfig
	fs          FS
	workDir     string
	vendor      *VendorTree
	files       *licenseFiles
	attribution map[string]*regexp.Regexp
}

// NewLicenseResolver returns a LicenseResolver for crates in the
// vendor tree. License file paths are recorded relative to workDir.
func NewLicenseResolver(cfg Config, fsys FS, workDir string, vendor *VendorTree) (*LicenseResolver, error) {
	files, err := newLicenseFiles(fsys, cfg.Licenses)
	if err != nil {
		return nil, err
	}
	attribution := make(map[string]*regexp.Regexp)
	for spdx, pattern := range cfg.Licenses.Attribution {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "%s file pattern", spdx)
		}
		attribution[spdx] = re
	}
	return &LicenseResolver{
		cfg:         cfg,
		lc:          cfg.Licenses,
		fs:          fsys,
		workDir:     workDir,
		vendor:      vendor,
		files:       files,
		attribution: attribution,
	}, nil
}

// splitLicense splits an SPDX expression into alternatives, which are
// separated by " OR " or, in older crates, by "/".
func splitLicense(expr string, sep string) []string {
	var terms []string
	for _, term := range strings.Split(expr, sep) {
		terms = append(terms, trimTerm(term))
	}
	return terms
}

func trimTerm(term string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(term), "()"))
}

// supportedKinds returns the kinds of the supported alternatives in
// a license expression, without duplicates.
func (r *LicenseResolver) supportedKinds(expr string) []string {
	var terms []string
	switch {
	case strings.Contains(expr, " OR "):
		terms = splitLicense(expr, " OR ")
	case strings.Contains(expr, "/"):
		terms = splitLicense(expr, "/")
	default:
		terms = []string{trimTerm(expr)}
	}

	var kinds []string
	for _, term := range terms {
		kind, ok := r.lc.Supported[term]
		if !ok {
			log.Debugf("unsupported license %q", term)
			continue
		}
		if !contains(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (r *LicenseResolver) relative(path string) string {
	if r.workDir == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(r.workDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// chooseAlternative chooses one license from an expression listing
// alternatives.
func (r *LicenseResolver) chooseAlternative(expr string, candidates []string) (LicenseRecord, error) {
	kinds := r.supportedKinds(expr)
	switch {
	case contains(kinds, r.lc.Privileged):
		// Attribution is covered by the existing notice for
		// this license, so no file is needed
		return LicenseRecord{License: r.lc.Privileged}, nil

	case len(kinds) == 1:
		if len(candidates) == 0 {
			return LicenseRecord{}, problemf("%s missing license file", kinds[0])
		}
		return LicenseRecord{
			License:     kinds[0],
			LicenseFile: r.relative(candidates[0]),
		}, nil

	case len(kinds) > 1:
		for _, preferred := range r.lc.Preference {
			if !contains(kinds, preferred) {
				continue
			}
			for _, candidate := range candidates {
				kind, err := r.files.guessKind(candidate)
				if err != nil {
					return LicenseRecord{}, err
				}
				if kind == preferred {
					return LicenseRecord{
						License:     preferred,
						LicenseFile: r.relative(candidate),
					}, nil
				}
			}
		}
		return LicenseRecord{}, problemf("no license file found for any of %s",
			strings.Join(kinds, ", "))
	}

	return LicenseRecord{}, problemf("no acceptable licenses: %q", expr)
}

// chooseCompound handles "X AND Y" where Y is an attribution-only
// license. X must be satisfiable on its own, and Y's own file must be
// present.
func (r *LicenseResolver) chooseCompound(expr, dir string, candidates []string) (*choice, error) {
	parts := splitLicense(expr, " AND ")
	if len(parts) != 2 {
		return nil, problemf("unsupported license expression: %q", expr)
	}

	var permissive, attribution string
	for _, part := range parts {
		if _, ok := r.attribution[part]; ok && attribution == "" {
			attribution = part
		} else {
			permissive = part
		}
	}
	if attribution == "" {
		return nil, problemf("unsupported license expression: %q", expr)
	}

	rec, err := r.chooseAlternative(permissive, candidates)
	if err != nil {
		return nil, err
	}

	files, err := matchFiles(r.fs, dir, []*regexp.Regexp{r.attribution[attribution]})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, problemf("%s missing license file", attribution)
	}

	kind := r.lc.Supported[attribution]
	if rec.LicenseFile != "" {
		log.Warningf("%s: recording %s file %s only, not %s file %s",
			expr, kind, r.relative(files[0]), rec.License, rec.LicenseFile)
	}
	return &choice{
		record: LicenseRecord{
			License:     kind,
			LicenseFile: r.relative(files[0]),
		},
		kinds:    []string{rec.License, kind},
		compound: true,
	}, nil
}

// choose returns the license for a crate. An error of type
// licenseProblem means the crate has no acceptable license.
func (r *LicenseResolver) choose(pkg metadata.Package) (*choice, error) {
	if rec, ok := r.lc.Overrides[pkg.Name]; ok {
		if rec.LicenseFile == "" && rec.License != r.lc.Privileged {
			return nil, problemf("%s override has no license file", rec.License)
		}
		return &choice{record: rec, kinds: []string{rec.License}}, nil
	}

	dir := r.vendor.EntryPath(pkg.Name, pkg.Version)
	candidates, err := r.files.candidates(dir)
	if err != nil {
		return nil, err
	}

	if strings.Contains(pkg.License, " AND ") {
		return r.chooseCompound(pkg.License, dir, candidates)
	}

	rec, err := r.chooseAlternative(pkg.License, candidates)
	if err != nil {
		return nil, err
	}
	return &choice{record: rec, kinds: []string{rec.License}}, nil
}

// Resolve chooses a license for every crate in pkgs. Crates with no
// acceptable license are all reported together in an
// *AggregateError of kind LicenseFailure.
func (r *LicenseResolver) Resolve(pkgs []metadata.Package) (*LicenseResult, error) {
	var fails failures
	result := &LicenseResult{Map: make(map[string]LicenseRecord)}
	used := make(map[string]struct{})
	var compound []string

	for _, pkg := range pkgs {
		if r.cfg.isVirtual(pkg.Name) {
			continue
		}
		if contains(r.lc.Skip, pkg.Name) {
			log.Infof("skipped license check on %s: listed as skipped", pkg.Name)
			continue
		}
		if owner, ok := r.lc.Aliases[pkg.Name]; ok {
			log.Infof("skipped license check on %s: license already in %s",
				pkg.Name, owner)
			continue
		}

		c, err := r.choose(pkg)
		if err != nil {
			if _, ok := err.(licenseProblem); ok {
				log.Errorf("%s had no acceptable licenses: %s", pkg.Name, err)
				fails.add(pkg.Name, "%s", err)
				continue
			}
			return nil, errors.Wrapf(err, "%s", pkg.Name)
		}

		result.Map[pkg.Name] = c.record
		for _, kind := range c.kinds {
			used[kind] = struct{}{}
		}
		if c.compound {
			compound = append(compound, pkg.Name)
		}
	}

	// An attribution license is only acceptable alongside the
	// privileged license.
	if _, ok := used[r.lc.Privileged]; len(compound) > 0 && !ok {
		for _, name := range compound {
			fails.add(name, "attribution license used without %s",
				r.lc.Privileged)
		}
	}

	if err := fails.err(LicenseFailure); err != nil {
		return nil, err
	}

	for kind := range used {
		result.Used = append(result.Used, kind)
	}
	sort.Strings(result.Used)
	return result, nil
}

// WriteLicenseMap writes the license map as JSON to path.
func (r *LicenseResolver) WriteLicenseMap(result *LicenseResult, path string) error {
	data, err := json.MarshalIndent(result.Map, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding license map")
	}
	return r.write(path, append(data, '\n'))
}

// WriteShorthand writes the license kinds in use to path, one per
// line, after a comment header.
func (r *LicenseResolver) WriteShorthand(result *LicenseResult, path string) error {
	var buf bytes.Buffer
	buf.WriteString(ShorthandHeader)
	for _, kind := range result.Used {
		buf.WriteString(kind + "\n")
	}
	return r.write(path, buf.Bytes())
}

func (r *LicenseResolver) write(path string, data []byte) error {
	if err := r.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return errors.Wrapf(r.fs.WriteFile(path, data, 0644), "writing %s", path)
}
