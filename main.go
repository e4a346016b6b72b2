/*
main.go

Copyright © 2025 Code Monkey Cybersecurity
Contact: git@cybermonkey.net.au

This file is part of Attest.

This software is dual-licensed under the Do No Harm License
and the GNU Affero General Public License v3 (AGPL-3.0-or-later).
You may use, modify, and distribute it under the terms of either license.

See LICENSE.agpl and LICENSE.dnh for full details.
*/
package main

import (
	"github.com/CodeMonkeyCybersecurity/attest/cmd"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/telemetry"
)

func main() {
	logger.InitializeWithFallback()
	defer func() { _ = logger.Sync() }()

	if err := telemetry.Init("attest"); err != nil {
		logger.L().Warn("telemetry init failed: " + err.Error())
	}

	cmd.Execute()
}
