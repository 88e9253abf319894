package router

import (
	"regexp"
	"strings"
)

var (
	routerdVersion = regexp.MustCompile(`version (\d+)\b`)
	semverVersion  = regexp.MustCompile(`\bv(\d+\.\d+\.\d+)\b`)
)

// ParseVersion extracts the digits following "version " from free-form
// --version output. Lines are scanned in order and the first match wins.
func ParseVersion(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "version") {
			continue
		}
		if m := routerdVersion.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseSemver extracts the first "v<major>.<minor>.<patch>" token, without the
// leading "v", from --version output.
func ParseSemver(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if m := semverVersion.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}
