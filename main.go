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

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/op/go-logging"
	"github.com/pkg/errors"

	"github.com/release-engineering/cratevendor/cratevendor"
	"github.com/release-engineering/cratevendor/cratevendor/metadata"
)

var log = logging.MustGetLogger("cratevendor")

// stringList is a flag which may be given more than once.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

var helpArg = flag.Bool("help", false, "print help")
var debugArg = flag.Bool("debug", false, "show debugging output")
var configArg = flag.String("config", "", "YAML file overriding the built-in configuration")
var platformArg = flag.String("platform", "", "target triple used to find unused crates")
var licenseMapArg = flag.String("license-map", "", "write license map to this file")
var metricsArg = flag.String("metrics-file", "", "write metrics in Prometheus text format to this file")
var verifyChecksumsArg = flag.Bool("verify-checksums", false, "verify every checksum file after the run")
var skipLicenseCheckArg stringList

func init() {
	flag.Var(&skipLicenseCheckArg, "skip-license-check",
		"skip the license check on a crate (may be repeated)")
}

const usage = `Usage: %s [OPTION]... [PATH]
       %s verify-licenses -license-file FILE -expected-licenses LIST

Apply patches to, empty unused crates in, and check licenses and
attestations of the vendored crates for the Cargo.toml in PATH
(default: current directory).

`

func usageFunc() {
	fmt.Fprintf(flag.CommandLine.Output(), usage, os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

// processArgs parses the command line and returns the directory
// holding Cargo.toml.
func processArgs(args []string) string {
	flag.Usage = usageFunc
	flag.CommandLine.Parse(args[1:])
	if *helpArg {
		flag.Usage()
		os.Exit(0)
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}
	if flag.NArg() == 1 {
		return flag.Arg(0)
	}
	return "."
}

func setupLogging() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(`%{level:.1s}: %{message}`)
	logging.SetBackend(logging.NewBackendFormatter(backend, formatter))
	level := logging.INFO
	if *debugArg {
		level = logging.DEBUG
	}
	logging.SetLevel(level, "cratevendor")
}

// getConfig returns the configuration after applying command line
// overrides.
func getConfig() (cratevendor.Config, error) {
	cfg := cratevendor.DefaultConfig()
	if *configArg != "" {
		var err error
		cfg, err = cratevendor.LoadConfig(*configArg)
		if err != nil {
			return cfg, err
		}
	}
	if *platformArg != "" {
		cfg.Platform = *platformArg
	}
	if *licenseMapArg != "" {
		cfg.Paths.LicenseMap = *licenseMapArg
	}
	skip := make([]string, 0, len(cfg.Licenses.Skip)+len(skipLicenseCheckArg))
	skip = append(skip, cfg.Licenses.Skip...)
	cfg.Licenses.Skip = append(skip, skipLicenseCheckArg...)
	return cfg, nil
}

func run(dir string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return err
	}

	var metrics *cratevendor.Metrics
	if *metricsArg != "" {
		metrics = cratevendor.NewMetrics()
	}

	resolver := metadata.NewCargo(dir, cfg.Platform)
	p, err := cratevendor.NewPipeline(cfg, resolver, dir, cratevendor.OSFS{}, metrics)
	if err != nil {
		return err
	}

	err = p.Run()
	if metrics != nil {
		if merr := metrics.WriteTextfile(*metricsArg); merr != nil {
			log.Error(merr)
		}
	}
	if err != nil {
		return err
	}

	if *verifyChecksumsArg {
		problems, err := p.VerifyChecksums()
		if err != nil {
			return err
		}
		for dir, files := range problems {
			log.Errorf("%s: checksum mismatch: %s", dir, strings.Join(files, ", "))
		}
		if len(problems) > 0 {
			return errors.New("checksum verification failed")
		}
	}
	return nil
}

// verifyLicenses implements the verify-licenses command, returning
// the exit status.
func verifyLicenses(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify-licenses", flag.ContinueOnError)
	fs.SetOutput(stderr)
	licenseFile := fs.String("license-file", "",
		"file listing the licenses in use, as written by the license check")
	expected := fs.String("expected-licenses", "",
		"space-separated list of the licenses expected")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *licenseFile == "" {
		fmt.Fprintln(stderr, "verify-licenses: -license-file is required")
		return 2
	}

	f, err := os.Open(*licenseFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer f.Close()

	if err := cratevendor.VerifyLicenses(f, *expected); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "verify-licenses" {
		os.Exit(verifyLicenses(os.Args[2:], os.Stderr))
	}

	dir := processArgs(os.Args)
	setupLogging()
	if err := run(dir); err != nil {
		log.Critical(err)
		os.Exit(1)
	}
}
