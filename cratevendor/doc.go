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

// Package cratevendor curates a checked-in tree of vendored Rust
// crates, as produced by 'cargo vendor --versioned-dirs'. It keeps the
// tree patched, checksummed, license-compliant and trimmed.
//
// A Pipeline runs four stages in order:
//
//     resolver := metadata.NewCargo(dir, cfg.Platform)
//     p, err := cratevendor.NewPipeline(cfg, resolver, dir, cratevendor.OSFS{}, nil)
//     ...
//     err = p.Run()
//
// The PatchEngine applies patches found under the patches directory.
// Each immediate subdirectory names either a vendored crate directory
// (name-version) or a crate name, in which case its patches are
// applied to every vendored version of that crate.
//
// The CrateDestroyer compares the crates needed for the configured
// platform with every crate in the lock file, and replaces the sources
// of unneeded crates with a stub which fails to compile.
//
// The LicenseResolver chooses a license, and a license file to ship,
// for every crate, and writes the list of license kinds in use.
//
// The ComplianceAuditor checks every crate against its attestation
// record.
//
// Every stage that mutates a crate directory regenerates its
// .cargo-checksum.json using a ChecksumManager. Stages that find
// problems report all of them at once as an *AggregateError.
package cratevendor
