package record

import (
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionRegex = regexp.MustCompile(`v?[0-9]+(?:\.[0-9]+)?(?:\.[0-9]+)?(?:-[0-9A-Za-z.-]+)?`)

// ParseVersion extracts a version from the first line of a tool's output.
// Recognisable versions are normalised through semver; anything else is
// returned as the trimmed first line.
func ParseVersion(output string) string {
	line := firstLine(strings.TrimSpace(output))
	match := versionRegex.FindString(line)
	if match == "" {
		return line
	}
	v, err := semver.NewVersion(match)
	if err != nil {
		return strings.TrimPrefix(match, "v")
	}
	return v.String()
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// findExecutable reports whether path, or path.exe on Windows, is a regular file.
func findExecutable(path string) (string, bool) {
	candidates := []string{path}
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(path), ".exe") {
		candidates = append(candidates, path+".exe")
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
