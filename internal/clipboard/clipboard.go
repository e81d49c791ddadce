// Package clipboard hands filled templates to the system clipboard through
// the platform's copy program (pbcopy, xclip, xsel, wl-copy, clip).
package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Command is one clipboard program invocation that reads text on stdin
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Candidates returns the programs tried on goos, in preference order
func Candidates(goos string) []Command {
	switch goos {
	case "darwin":
		return []Command{{Name: "pbcopy"}}
	case "windows":
		return []Command{{Name: "clip"}}
	case "linux", "freebsd", "openbsd", "netbsd":
		return []Command{
			{Name: "xclip", Args: []string{"-selection", "clipboard"}},
			{Name: "xsel", Args: []string{"--clipboard", "--input"}},
			{Name: "wl-copy"},
		}
	default:
		return nil
	}
}

// UnavailableError means none of the candidate programs is installed
type UnavailableError struct {
	OS    string
	Tried []Command
}

func (e *UnavailableError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("clipboard not supported on %s", e.OS)
	}
	names := make([]string, len(e.Tried))
	for i, c := range e.Tried {
		names[i] = c.Name
	}
	return fmt.Sprintf("no clipboard utility found (tried %s)", strings.Join(names, ", "))
}

// InstallHint returns what to install on the error's platform
func (e *UnavailableError) InstallHint() string {
	switch e.OS {
	case "linux":
		return "install xclip (X11) or wl-clipboard (Wayland)"
	case "darwin":
		return "pbcopy ships with macOS; check your PATH"
	case "windows":
		return "clip ships with Windows; check your PATH"
	default:
		return ""
	}
}

// Copier writes text to the first installed candidate program
type Copier struct {
	os       string
	commands []Command
	lookPath func(string) (string, error)
}

// New returns a Copier for the running platform
func New() *Copier {
	return NewWithCommands(runtime.GOOS, Candidates(runtime.GOOS)...)
}

// NewWithCommands returns a Copier that tries commands in order
func NewWithCommands(goos string, commands ...Command) *Copier {
	return &Copier{os: goos, commands: commands, lookPath: exec.LookPath}
}

// Available reports whether any candidate program is installed
func (c *Copier) Available() bool {
	for _, cmd := range c.commands {
		if _, err := c.lookPath(cmd.Name); err == nil {
			return true
		}
	}
	return false
}

// Copy pipes text into the first installed program. If an installed program
// fails the next one is tried; the last failure is returned.
func (c *Copier) Copy(ctx context.Context, text string) error {
	var lastErr error
	for _, candidate := range c.commands {
		path, err := c.lookPath(candidate.Name)
		if err != nil {
			continue
		}

		cmd := exec.CommandContext(ctx, path, candidate.Args...)
		cmd.Stdin = strings.NewReader(text)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s failed: %w (%s)", candidate, err, strings.TrimSpace(string(out)))
	}

	if lastErr != nil {
		return lastErr
	}
	return &UnavailableError{OS: c.os, Tried: c.commands}
}
