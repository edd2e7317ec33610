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
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const patchSuffix = ".patch"

// Patch is a change to apply to one or more vendored crates.
type Patch struct {
	// Path is the absolute path to the patch file or script.
	Path string

	// Script is true for an executable which makes the change when
	// run from the crate directory, and false for a diff.
	Script bool
}

// Name returns the file name of the patch.
func (p Patch) Name() string {
	return filepath.Base(p.Path)
}

// Apply applies the patch to the crate directory dir. Diffs are
// applied with 'patch -p1', which tolerates offset hunks.
func (p Patch) Apply(dir string) error {
	if p.Script {
		_, err := run(dir, p.Path)
		return err
	}
	_, err := run(dir, "patch", "-p1", "--no-backup-if-mismatch", "-i", p.Path)
	return err
}

// patchSet is the patches from one directory of the patch tree and
// the vendored crate directories they apply to.
type patchSet struct {
	selector string
	patches  []Patch
	targets  []string
}

// PatchEngine applies a tree of patches to the vendor tree.
type PatchEngine struct {
	fs        FS
	vendor    *VendorTree
	checksums *ChecksumManager

	// Metrics, if not nil, counts applied and failed patches.
	Metrics *Metrics
}

// NewPatchEngine returns a PatchEngine for the given vendor tree.
func NewPatchEngine(fsys FS, vendor *VendorTree, checksums *ChecksumManager) *PatchEngine {
	return &PatchEngine{
		fs:        fsys,
		vendor:    vendor,
		checksums: checksums,
	}
}

// resolve returns the vendored directories named by a patch
// directory. An exact crate directory name takes precedence over a
// crate name.
func (e *PatchEngine) resolve(selector string, crates map[string][]string) ([]string, error) {
	if e.vendor.HasEntry(selector) {
		return []string{selector}, nil
	}
	if dirs, ok := crates[selector]; ok && len(dirs) > 0 {
		return dirs, nil
	}
	return nil, errors.Wrapf(ErrorUnknownTarget, "%s in %s", selector, e.vendor.Path)
}

// patches returns the patches found directly in dir, sorted by name.
func (e *PatchEngine) patches(dir string) ([]Patch, error) {
	entries, err := e.fs.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var patches []Patch
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		pth := filepath.Join(dir, entry.Name())
		if strings.HasSuffix(entry.Name(), patchSuffix) {
			patches = append(patches, Patch{Path: pth})
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "inspecting %s", pth)
		}
		if info.Mode().Perm()&0111 != 0 {
			patches = append(patches, Patch{Path: pth, Script: true})
			continue
		}
		log.Debugf("%s: not a patch or script, ignoring", pth)
	}
	return patches, nil
}

// plan reads the whole patch tree and resolves every patch directory
// before anything is applied, so that a patch directory naming an
// unknown crate is reported without modifying the vendor tree.
func (e *PatchEngine) plan(patchRoot string) ([]patchSet, error) {
	crates, err := e.vendor.Crates()
	if err != nil {
		return nil, err
	}

	entries, err := e.fs.ReadDir(patchRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", patchRoot)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	// Scripts are run from the crate directory
	absPatchRoot, err := filepath.Abs(patchRoot)
	if err != nil {
		return nil, err
	}

	var sets []patchSet
	for _, entry := range entries {
		// Files in the top-level directory are not patches
		if !entry.IsDir() {
			continue
		}
		selector := entry.Name()
		targets, err := e.resolve(selector, crates)
		if err != nil {
			return nil, err
		}
		patches, err := e.patches(filepath.Join(absPatchRoot, selector))
		if err != nil {
			return nil, err
		}
		sets = append(sets, patchSet{
			selector: selector,
			patches:  patches,
			targets:  targets,
		})
	}
	return sets, nil
}

// Apply applies every patch under patchRoot and regenerates the
// checksums of every crate directory a patch was applied to. It
// returns the sorted names of those directories.
//
// If a patch directory names an unknown crate, Apply returns an error
// whose cause is ErrorUnknownTarget and changes nothing. Otherwise
// every patch is attempted, and failures are returned together as an
// *AggregateError of kind PatchFailure after checksums have been
// regenerated. Directories whose checksums could not be regenerated
// are reported in the same error.
func (e *PatchEngine) Apply(patchRoot string) ([]string, error) {
	if !isDir(e.fs, patchRoot) {
		log.Infof("no patches in %s", patchRoot)
		return nil, nil
	}

	sets, err := e.plan(patchRoot)
	if err != nil {
		return nil, err
	}

	var fails failures
	touched := make(map[string]struct{})
	for _, set := range sets {
		for _, patch := range set.patches {
			for _, target := range set.targets {
				// Even a failed patch may have changed some files
				touched[target] = struct{}{}
				dir := filepath.Join(e.vendor.Path, target)
				log.Infof("applying %s to %s", patch.Name(), target)
				if err := patch.Apply(dir); err != nil {
					log.Errorf("failed to apply %s to %s: %s",
						patch.Name(), target, err)
					fails.add(set.selector+"/"+patch.Name()+" -> "+target,
						"%s", err)
					e.Metrics.patchFailed()
					continue
				}
				e.Metrics.patchApplied()
			}
		}
	}

	dirs := make([]string, 0, len(touched))
	for dir := range touched {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		_, err := e.checksums.Regenerate(filepath.Join(e.vendor.Path, dir))
		if err != nil {
			log.Errorf("%s: %s", dir, err)
			fails.add(dir, "regenerating checksums: %s", err)
		}
	}

	return dirs, fails.err(PatchFailure)
}
