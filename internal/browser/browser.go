// Package browser opens URLs in the user's default browser.
package browser

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrNoOpener is returned when no browser launcher is available on the host.
var ErrNoOpener = errors.New("no browser opener found")

// Opener opens a URL for the user.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

// System opens URLs with the platform launcher (open, xdg-open, cmd /c start).
// The launcher is started and not waited on.
type System struct {
	GOOS     string
	LookPath func(string) (string, error)
	Start    func(name string, args ...string) error
}

// NewSystem returns a System opener for the running platform.
func NewSystem() *System {
	return &System{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		Start: func(name string, args ...string) error {
			// #nosec G204
			return exec.Command(name, args...).Start()
		},
	}
}

func (s *System) Open(url string) error {
	name, args, err := s.command(url)
	if err != nil {
		return err
	}
	if err := s.Start(name, args...); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func (s *System) command(url string) (string, []string, error) {
	switch s.GOOS {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "cmd", []string{"/c", "start", "", url}, nil
	}
	for _, c := range []string{"xdg-open", "x-www-browser", "sensible-browser"} {
		if s.available(c) {
			return c, []string{url}, nil
		}
	}
	return "", nil, ErrNoOpener
}

func (s *System) available(name string) bool {
	_, err := s.LookPath(name)
	return err == nil
}
