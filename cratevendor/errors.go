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
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorUnknownTarget indicates a patch directory names neither a
// vendored crate directory nor a vendored crate name. It is returned
// wrapped with the selector name; use errors.Cause to compare.
var ErrorUnknownTarget = errors.New("unknown patch target")

// ErrorNoManifest indicates a vendored crate has no Cargo.toml.
var ErrorNoManifest = errors.New("no Cargo.toml")

// FailureKind tags an AggregateError with the stage that produced it.
type FailureKind string

const (
	// PatchFailure means one or more patches failed to apply.
	PatchFailure FailureKind = "patch"

	// LicenseFailure means one or more crates have no acceptable
	// license.
	LicenseFailure FailureKind = "license"

	// ComplianceFailure means one or more crates failed the
	// attestation audit.
	ComplianceFailure FailureKind = "compliance"
)

// Failure is a single problem found while scanning.
type Failure struct {
	// Subject names what failed, e.g. a crate or a patch/target pair.
	Subject string

	// Reason describes the failure.
	Reason string
}

func (f Failure) String() string {
	return f.Subject + ": " + f.Reason
}

// failures accumulates Failure values during a scan so they can be
// reported together once the scan is complete.
type failures []Failure

func (f *failures) add(subject, format string, args ...interface{}) {
	*f = append(*f, Failure{
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	})
}

// err returns nil if nothing was recorded, otherwise an
// *AggregateError of the given kind.
func (f failures) err(kind FailureKind) error {
	if len(f) == 0 {
		return nil
	}
	list := make([]Failure, len(f))
	copy(list, f)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Subject < list[j].Subject
	})
	return &AggregateError{Kind: kind, Failures: list}
}

// AggregateError reports every failure found by one stage.
type AggregateError struct {
	Kind     FailureKind
	Failures []Failure
}

func (e *AggregateError) Error() string {
	lines := make([]string, 0, len(e.Failures)+1)
	lines = append(lines, fmt.Sprintf("%d %s failure(s):",
		len(e.Failures), e.Kind))
	for _, f := range e.Failures {
		lines = append(lines, "  "+f.String())
	}
	return strings.Join(lines, "\n")
}

// IsKind reports whether err is (or wraps) an *AggregateError of the
// given kind.
func IsKind(err error, kind FailureKind) bool {
	agg, ok := errors.Cause(err).(*AggregateError)
	return ok && agg.Kind == kind
}
