// Package policy enforces the --enable-commands allowlist. Entries name
// either a full command path ("invoices pay") or a command group
// ("invoices"), which covers every subcommand under it. Mutating commands
// like send are only reachable when listed, so an agent wrapper can hand out
// read-only access by listing the query commands alone.
package policy

import (
	"strings"

	clierr "github.com/payflowhq/payflow/internal/errors"
)

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := splitPath(commandPath)
	for _, allowed := range allowlist {
		if covers(splitPath(allowed), path) {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// covers reports whether the allowlist entry matches the command path
// exactly or is a proper prefix of it (a group entry).
func covers(allowed, path []string) bool {
	if len(allowed) == 0 || len(allowed) > len(path) {
		return false
	}
	for i, part := range allowed {
		if path[i] != part {
			return false
		}
	}
	return true
}

func splitPath(v string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(v)))
}
