package loopback

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func openBrowser(url string) error {
	if shouldSkipAutoBrowserOpen() {
		return nil
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}

func shouldSkipAutoBrowserOpen() bool {
	// Never launch a browser under go test.
	if flag.Lookup("test.v") != nil {
		return true
	}
	v := strings.TrimSpace(strings.ToLower(os.Getenv("GRAPH_NO_BROWSER")))
	return v == "1" || v == "true" || v == "yes"
}
