package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// chromeCandidates are the executable names chromedp also looks for on Linux.
var chromeCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"google-chrome-beta",
	"google-chrome-unstable",
}

// CheckChrome reports the Chrome binary the browser submitter will launch.
// A configured path wins; otherwise the usual names are resolved on PATH.
func CheckChrome(configured string) Status {
	result := Status{
		Name:        "Chrome",
		Description: "Required for registry form submission",
	}

	if path := strings.TrimSpace(configured); path != "" {
		result.Command = path
		info, err := os.Stat(path)
		switch {
		case err != nil:
			result.Detail = fmt.Sprintf("configured chrome_path unavailable: %v", err)
		case !isExecutable(info):
			result.Detail = fmt.Sprintf("%s is not executable", path)
		default:
			result.Available = true
		}
		return result
	}

	for _, name := range chromeCandidates {
		if resolved, err := exec.LookPath(name); err == nil {
			result.Command = resolved
			result.Available = true
			return result
		}
	}
	result.Command = chromeCandidates[len(chromeCandidates)-1]
	result.Detail = "no chrome or chromium binary found on PATH"
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
