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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// ChecksumFile is the name of the integrity sidecar cargo keeps in
// each vendored crate directory.
const ChecksumFile = ".cargo-checksum.json"

// FileHash records the hash of a file in the format cargo expects:
// lowercase hex sha256.
type FileHash string

// Hasher is the interface that wraps the Hash method.
type Hasher interface {
	// Hash returns the FileHash for the given file content.
	Hash(content []byte) FileHash
}

type sha256Hasher struct{}

// Hash implements the Hasher interface using sha256.
func (h sha256Hasher) Hash(content []byte) FileHash {
	sum := sha256.Sum256(content)
	return FileHash(hex.EncodeToString(sum[:]))
}

// FileHashes is a map of paths, relative to the top-level of a crate
// directory and using forward slashes, to their hashes.
type FileHashes map[string]FileHash

// NewFileHashes returns a new FileHashes from a filesystem tree at
// root. Keys in the excludes map are relative filenames to ignore.
func NewFileHashes(fsys FS, h Hasher, root string, excludes map[string]struct{}) (FileHashes, error) {
	hashes := make(FileHashes)
	err := walkFiles(fsys, root, func(rel string) error {
		if _, skip := excludes[rel]; skip {
			return nil
		}
		content, err := fsys.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return errors.Wrapf(err, "hashing %s", rel)
		}
		hashes[rel] = h.Hash(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// Mismatches returns a sorted slice of filenames from h whose hashes
// mismatch those in s, or which are missing from s.
func (h FileHashes) Mismatches(s FileHashes) []string {
	var mismatches []string
	for path, fileHash := range h {
		sh, ok := s[path]
		if !ok {
			log.Debugf("%s: not present", path)
			mismatches = append(mismatches, path)
		} else if fileHash != sh {
			log.Debugf("%s: hash mismatch", path)
			mismatches = append(mismatches, path)
		}
	}

	sort.Strings(mismatches)
	return mismatches
}

// ChecksumManager reads and rewrites the checksum sidecar of vendored
// crate directories.
type ChecksumManager struct {
	fs     FS
	hasher Hasher
}

// NewChecksumManager returns a ChecksumManager which hashes files
// with sha256.
func NewChecksumManager(fsys FS) *ChecksumManager {
	return &ChecksumManager{
		fs:     fsys,
		hasher: sha256Hasher{},
	}
}

// Load returns the decoded sidecar of the crate directory dir. Each
// top-level key is left undecoded so it can be written back
// unchanged. It returns an error satisfying os.IsNotExist if there is
// no sidecar.
func (m *ChecksumManager) Load(dir string) (map[string]json.RawMessage, error) {
	data, err := m.fs.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		return nil, err
	}
	contents := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filepath.Join(dir, ChecksumFile))
	}
	return contents, nil
}

// hashes returns the current hashes of every file in dir except the
// sidecar itself.
func (m *ChecksumManager) hashes(dir string) (FileHashes, error) {
	excludes := map[string]struct{}{ChecksumFile: {}}
	return NewFileHashes(m.fs, m.hasher, dir, excludes)
}

// Regenerate replaces the "files" map in the sidecar of dir with the
// hashes of exactly the files now present. Other keys in the sidecar
// are preserved. If dir has no sidecar there is nothing to checksum
// and Regenerate returns false with no error.
func (m *ChecksumManager) Regenerate(dir string) (bool, error) {
	contents, err := m.Load(dir)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			log.Infof("%s: no %s, nothing to checksum", dir, ChecksumFile)
			return false, nil
		}
		return false, err
	}

	hashes, err := m.hashes(dir)
	if err != nil {
		return false, err
	}

	files, err := json.Marshal(hashes)
	if err != nil {
		return false, errors.Wrap(err, "encoding hashes")
	}
	contents["files"] = files

	// encoding/json sorts map keys
	data, err := json.Marshal(contents)
	if err != nil {
		return false, errors.Wrapf(err, "encoding %s", ChecksumFile)
	}
	err = m.fs.WriteFile(filepath.Join(dir, ChecksumFile), data, 0644)
	if err != nil {
		return false, errors.Wrapf(err, "writing %s", ChecksumFile)
	}

	log.Debugf("%s: regenerated %d hashes", dir, len(hashes))
	return true, nil
}

// Verify compares the sidecar of dir with the files present and
// returns the sorted relative paths which are missing from the
// sidecar, recorded but no longer present, or whose hash differs.
func (m *ChecksumManager) Verify(dir string) ([]string, error) {
	contents, err := m.Load(dir)
	if err != nil {
		return nil, err
	}
	recorded := make(FileHashes)
	if raw, ok := contents["files"]; ok {
		if err := json.Unmarshal(raw, &recorded); err != nil {
			return nil, errors.Wrapf(err, "parsing files in %s", dir)
		}
	}

	actual, err := m.hashes(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var problems []string
	for _, path := range actual.Mismatches(recorded) {
		seen[path] = struct{}{}
		problems = append(problems, path)
	}
	for _, path := range recorded.Mismatches(actual) {
		if _, ok := seen[path]; !ok {
			problems = append(problems, path)
		}
	}

	sort.Strings(problems)
	return problems, nil
}
