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
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Some license kinds are known by another name to the package
// manager which consumes the shorthand file.
var licenseTranslations = map[string]string{
	"BSD-3": "BSD",
}

// RequiredLicenses reads a shorthand file as written by
// WriteShorthand and returns the sorted license names it requires.
// Text after '#' is ignored, as are blank lines.
func RequiredLicenses(r io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if translated, ok := licenseTranslations[line]; ok {
			line = translated
		}
		seen[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sortedKeys(seen), nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// VerifyLicenses compares the licenses required by the shorthand
// file with expected, a space-separated list of license names. It
// returns an error describing any difference.
func VerifyLicenses(shorthand io.Reader, expected string) error {
	required, err := RequiredLicenses(shorthand)
	if err != nil {
		return err
	}
	listedSet := make(map[string]struct{})
	for _, name := range strings.Fields(expected) {
		listedSet[name] = struct{}{}
	}
	listed := sortedKeys(listedSet)

	var unlisted, unrequired []string
	for _, name := range required {
		if _, ok := listedSet[name]; !ok {
			unlisted = append(unlisted, name)
		}
	}
	requiredSet := make(map[string]struct{})
	for _, name := range required {
		requiredSet[name] = struct{}{}
	}
	for _, name := range listed {
		if _, ok := requiredSet[name]; !ok {
			unrequired = append(unrequired, name)
		}
	}
	if unlisted == nil && unrequired == nil {
		return nil
	}

	var msg []string
	if unlisted != nil {
		msg = append(msg, fmt.Sprintf("required but not listed: %v", unlisted))
	}
	if unrequired != nil {
		msg = append(msg, fmt.Sprintf("listed but not required: %v", unrequired))
	}
	log.Debugf("license list differences:\n%s", unifiedDiff("listed", "required",
		strings.Join(listed, "\n")+"\n", strings.Join(required, "\n")+"\n"))
	return fmt.Errorf("listed licenses differ from required licenses: %s",
		strings.Join(msg, "; "))
}
