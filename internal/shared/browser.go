package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser starts the system browser on url without waiting for it to exit.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	go cmd.Wait()
	return nil
}

// browserCommand returns the launcher for goos: open on macOS, xdg-open on Linux and BSDs, start on Windows.
func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("%w: cannot open a browser on %s", ErrInvalidArgument, goos)
	}
}
