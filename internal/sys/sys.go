// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package sys holds process-wide identity facts read once at startup.
package sys

import "os"

// Hostname identifies this engine process in logs and in the debug
// HTTP surface; the scheduler itself is fleet-wide and does not scope
// passes to a single host.
var Hostname = readHostname()

func readHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
