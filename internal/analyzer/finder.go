package analyzer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecutableName is the file name of the Elite Insights command line parser
const ExecutableName = "GuildWars2EliteInsights-CLI"

// Find locates the analyzer executable. A directory is searched for the
// executable; an empty path falls back to PATH.
func Find(path string) (string, error) {
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("analyzer not found at %s: %w", path, err)
		}
		if !info.IsDir() {
			return path, nil
		}

		for _, name := range executableNames() {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("analyzer not found in %s", path)
	}

	for _, name := range executableNames() {
		if found, err := exec.LookPath(name); err == nil {
			return found, nil
		}
	}
	return "", fmt.Errorf("%s not found in PATH", ExecutableName)
}

func executableNames() []string {
	if runtime.GOOS == "windows" {
		return []string{ExecutableName + ".exe"}
	}
	return []string{ExecutableName, strings.ToLower(ExecutableName), ExecutableName + ".exe"}
}
