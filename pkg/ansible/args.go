package ansible

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// RenderArgs builds the ansible-playbook argument list for a playbook and a
// set of extra variables. Variables are emitted in sorted key order so the
// rendered command line is deterministic.
func RenderArgs(playbookPath string, vars map[string]string) []string {
	args := []string{playbookPath}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return args
}

// VersionFromDistrURL extracts a best-effort version from an artifact URL,
// e.g. ".../jurws-1.80.0.jar" -> "1.80.0". Returns "" when the filename does
// not carry a recognizable version suffix.
func VersionFromDistrURL(distrURL string) string {
	base := path.Base(strings.TrimSuffix(distrURL, "/"))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	// The version is everything after the first dash followed by a digit,
	// so "app-2.0.1-rc1" yields "2.0.1-rc1".
	for i := 0; i < len(base)-1; i++ {
		if base[i] == '-' && base[i+1] >= '0' && base[i+1] <= '9' {
			return base[i+1:]
		}
	}
	return ""
}
