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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FS is the set of filesystem operations the pipeline stages need.
// OSFS implements it on the real filesystem.
type FS interface {
	// ReadDir returns the entries of the named directory, sorted
	// by file name.
	ReadDir(name string) ([]fs.DirEntry, error)

	// Stat returns information about the named file.
	Stat(name string) (fs.FileInfo, error)

	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(name string, perm fs.FileMode) error
	RemoveAll(name string) error
}

// OSFS implements FS using the os package.
type OSFS struct{}

func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (OSFS) ReadFile(name string) ([]byte, error)       { return os.ReadFile(name) }
func (OSFS) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(name, perm)
}
func (OSFS) RemoveAll(name string) error { return os.RemoveAll(name) }

func (OSFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// isDir returns true if name exists and is a directory.
func isDir(fsys FS, name string) bool {
	info, err := fsys.Stat(name)
	return err == nil && info.IsDir()
}

// linksToFile returns true if entry is a symbolic link to a regular
// file.
func linksToFile(fsys FS, entry fs.DirEntry, pth string) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := fsys.Stat(pth)
	return err == nil && info.Mode().IsRegular()
}

// walkFiles calls fn for every regular file below root, and every
// symbolic link to one, in lexical order, with the path of the file
// relative to root (using forward slashes). Symbolic links to
// directories are not followed.
func walkFiles(fsys FS, root string, fn func(rel string) error) error {
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
		for _, entry := range entries {
			pth := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(pth); err != nil {
					return err
				}
				continue
			}
			if !entry.Type().IsRegular() && !linksToFile(fsys, entry, pth) {
				continue
			}
			rel, err := filepath.Rel(root, pth)
			if err != nil {
				return err
			}
			if err := fn(filepath.ToSlash(rel)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}
