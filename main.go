// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"spectrail/cmd"
	applog "spectrail/internal/log"
	"spectrail/pkg/build"
)

// main wires build information and hands over to the command line.
//
// Startup reads the linked build flags; a binary built without them still
// runs with development placeholders. Everything else (configuration,
// PortAudio, the render loop and the recorder) is owned by the command
// that runs, which releases it before returning.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build flags incomplete: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
