// Package pathutil provides PATH environment utilities for service
// launches. launchd/systemd user agents often start with a minimal
// PATH that doesn't include common locations like /opt/homebrew/bin;
// this package repairs that before cmd/supervisord spawns the worker
// binary, so connector tooling the worker shells out to can still be
// found.
package pathutil

import "strings"

// mergePaths combines two PATH strings, preserving order and removing duplicates.
// Primary paths come first, then secondary paths that aren't already present.
func mergePaths(primary, secondary string) string {
	seen := make(map[string]bool)
	var merged []string

	for _, pathList := range []string{primary, secondary} {
		for _, part := range strings.Split(pathList, ":") {
			if part != "" && !seen[part] {
				seen[part] = true
				merged = append(merged, part)
			}
		}
	}
	return strings.Join(merged, ":")
}
