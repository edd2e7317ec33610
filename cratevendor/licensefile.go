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
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type licenseSignature struct {
	kind    string
	names   []string
	content []*regexp.Regexp
}

// licenseFiles finds license files in crate directories and guesses
// which license they contain.
type licenseFiles struct {
	fs         FS
	patterns   []*regexp.Regexp
	signatures []licenseSignature
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling %q", pattern)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func newLicenseFiles(fsys FS, lc LicenseConfig) (*licenseFiles, error) {
	patterns, err := compilePatterns(lc.FilePatterns)
	if err != nil {
		return nil, err
	}
	lf := &licenseFiles{fs: fsys, patterns: patterns}
	for _, sig := range lc.Signatures {
		s := licenseSignature{kind: sig.Kind}
		for _, name := range sig.Names {
			s.names = append(s.names, strings.ToUpper(name))
		}
		for _, pattern := range sig.Content {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, errors.Wrapf(err, "%s signature", sig.Kind)
			}
			s.content = append(s.content, re)
		}
		lf.signatures = append(lf.signatures, s)
	}
	return lf, nil
}

// matchFiles returns the regular files directly in dir whose names
// match any of patterns. Files are ordered by the first pattern they
// match and then by name, so the result does not depend on directory
// listing order. A missing dir has no files.
func matchFiles(fsys FS, dir string, patterns []*regexp.Regexp) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	type match struct {
		rank int
		name string
	}
	var matches []match
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		for rank, re := range patterns {
			if re.MatchString(entry.Name()) {
				matches = append(matches, match{rank, entry.Name()})
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].name < matches[j].name
	})

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, m.name)
	}
	return paths, nil
}

// candidates returns the license files in a crate directory.
func (lf *licenseFiles) candidates(dir string) ([]string, error) {
	return matchFiles(lf.fs, dir, lf.patterns)
}

// guessKind returns the license kind of the file at path, judged
// first by its name and then by its content, or "" if it is not
// recognised.
func (lf *licenseFiles) guessKind(path string) (string, error) {
	name := strings.ToUpper(filepath.Base(path))
	for _, sig := range lf.signatures {
		for _, marker := range sig.names {
			if strings.Contains(name, marker) {
				return sig.kind, nil
			}
		}
	}

	content, err := lf.fs.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	for _, sig := range lf.signatures {
		for _, re := range sig.content {
			if re.Match(content) {
				return sig.kind, nil
			}
		}
	}
	return "", nil
}
