// Package opener hands files and URLs to the desktop's default handler.
package opener

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Operating system identifiers.
const (
	osDarwin  = "darwin"
	osLinux   = "linux"
	osWindows = "windows"
)

// Opener launches the platform handler for a target.
type Opener struct {
	goos  string
	start func(name string, args ...string) error
}

// New returns an Opener for the running platform.
func New() *Opener {
	return &Opener{goos: runtime.GOOS, start: startDetached}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Command returns the program and arguments that open target.
func (o *Opener) Command(target string) (string, []string, error) {
	switch o.goos {
	case osDarwin:
		return "open", []string{target}, nil
	case osLinux, "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case osWindows:
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", o.goos)
	}
}

// OpenFile opens an existing local file with its default application.
func (o *Opener) OpenFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("open %s: is a directory", path)
	}
	return o.open(path)
}

// OpenURL opens url in the default browser.
func (o *Opener) OpenURL(url string) error {
	return o.open(url)
}

func (o *Opener) open(target string) error {
	name, args, err := o.Command(target)
	if err != nil {
		return err
	}
	return o.start(name, args...)
}
