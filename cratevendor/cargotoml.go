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
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CargoManifest is the name of the crate manifest.
const CargoManifest = "Cargo.toml"

const (
	stubDescription = "Empty crate that should not build."
	stubLicense     = "Apache-2.0"
)

// Keys in [package] which affect the build or point at files which
// no longer exist once a crate is emptied.
var strippedPackageKeys = []string{
	"build",
	"exclude",
	"include",
	"license-file",
	"license_file",
	"links",
	"workspace",
}

var dependencyKeys = []string{
	"dependencies",
	"build-dependencies",
	"build_dependencies",
	"dev-dependencies",
	"dev_dependencies",
}

// Target sections which name source files.
var targetSections = []string{"bin", "example", "bench", "test"}

func deleteKeys(table map[string]interface{}, keys []string) {
	for _, key := range keys {
		delete(table, key)
	}
}

// optionalDependencies returns the names of the optional
// dependencies in a table of dependency tables, such as the top-level
// manifest or one target table.
func optionalDependencies(table map[string]interface{}) []string {
	var names []string
	for _, key := range dependencyKeys {
		deps, ok := table[key].(map[string]interface{})
		if !ok {
			continue
		}
		for name, value := range deps {
			dep, ok := value.(map[string]interface{})
			if ok && dep["optional"] == true {
				names = append(names, name)
			}
		}
	}
	return names
}

// implicitFeatures returns the features cargo creates for optional
// dependencies, which disappear along with the dependencies. A
// dependency named with "dep:" in an explicit feature has no implicit
// feature.
func implicitFeatures(contents map[string]interface{}) []string {
	optional := optionalDependencies(contents)
	if targets, ok := contents["target"].(map[string]interface{}); ok {
		for _, value := range targets {
			if target, ok := value.(map[string]interface{}); ok {
				optional = append(optional, optionalDependencies(target)...)
			}
		}
	}

	features, _ := contents["features"].(map[string]interface{})
	hidden := make(map[string]struct{})
	for _, value := range features {
		list, _ := value.([]interface{})
		for _, item := range list {
			if s, ok := item.(string); ok && strings.HasPrefix(s, "dep:") {
				hidden[strings.TrimPrefix(s, "dep:")] = struct{}{}
			}
		}
	}

	var implicit []string
	for _, name := range optional {
		if _, ok := features[name]; ok {
			continue
		}
		if _, ok := hidden[name]; ok {
			continue
		}
		if !contains(implicit, name) {
			implicit = append(implicit, name)
		}
	}
	return implicit
}

// StripManifest rewrites the content of a Cargo.toml for a crate
// whose sources have been replaced by a stub. The package keeps its
// name, version and other metadata, but loses everything that could
// affect a build: dependencies (including per-target dependencies),
// build scripts, native library links, and binary, example, bench
// and test targets. Features are kept, since other crates may name
// them, but enable nothing. This includes the features implied by
// optional dependencies.
func StripManifest(data []byte) ([]byte, error) {
	contents := make(map[string]interface{})
	if err := toml.Unmarshal(data, &contents); err != nil {
		return nil, errors.Wrap(err, "parsing "+CargoManifest)
	}

	pkg, ok := contents["package"].(map[string]interface{})
	if !ok {
		return nil, errors.New(CargoManifest + " has no [package]")
	}
	pkg["description"] = stubDescription
	pkg["license"] = stubLicense
	deleteKeys(pkg, strippedPackageKeys)

	implicit := implicitFeatures(contents)
	deleteKeys(contents, dependencyKeys)
	if targets, ok := contents["target"].(map[string]interface{}); ok {
		for name, value := range targets {
			target, ok := value.(map[string]interface{})
			if ok {
				deleteKeys(target, dependencyKeys)
			}
			if !ok || len(target) == 0 {
				delete(targets, name)
			}
		}
		if len(targets) == 0 {
			delete(contents, "target")
		}
	}

	features, ok := contents["features"].(map[string]interface{})
	if !ok && len(implicit) > 0 {
		features = make(map[string]interface{})
		contents["features"] = features
	}
	for name := range features {
		features[name] = []string{}
	}
	for _, name := range implicit {
		features[name] = []string{}
	}

	deleteKeys(contents, targetSections)
	if lib, ok := contents["lib"].(map[string]interface{}); ok {
		delete(lib, "path")
		if len(lib) == 0 {
			delete(contents, "lib")
		}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(contents); err != nil {
		return nil, errors.Wrap(err, "encoding "+CargoManifest)
	}
	return buf.Bytes(), nil
}
