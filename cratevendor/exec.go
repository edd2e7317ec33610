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
	"os"
	"os/exec"
)

// execCommand is replaced by tests.
var execCommand = exec.Command

// run runs command with args in dir and returns its combined output.
// The output is copied to stderr if the command fails.
func run(dir, command string, args ...string) (*bytes.Buffer, error) {
	p := execCommand(command, args...)
	var buf bytes.Buffer
	p.Stdout = &buf
	p.Stderr = &buf
	p.Dir = dir
	err := p.Run()
	if err != nil {
		os.Stderr.Write(buf.Bytes())
	}
	return &buf, err
}
