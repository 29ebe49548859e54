// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"strings"

	"github.com/dimiro1/banner"
)

// bannerTemplate follows URunDEAD-frisbee's kubectl-frisbee startup
// banner convention: a static mark plus the handful of runtime facts
// dimiro1/banner fills in from the running process.
const bannerTemplate = `
 __      __.__              ____   ____0.___
/  \    /  \__| ____   _____\   \ /   /|   \
\   \/\/   /  |/    \_/ __ \ \   Y   / |   |
 \        /|  |   |  \  ___/  \     /  |   |
  \__/\  / |__|___|  /\___  >  \___/   |___|
       \/          \/     \/
winevm-scheduler — {{ .GOOS }}/{{ .GOARCH }}, Go {{ .GoVersion }}, {{ .NumCPU }} CPUs

`

// printBanner writes the startup banner to w unless disabled, colored
// unless plain is requested (piped logs, CI).
func printBanner(w io.Writer, enabled, color bool) {
	banner.Init(w, enabled, color, strings.NewReader(bannerTemplate))
}
