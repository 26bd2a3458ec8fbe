package tactile

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Flavor describes how to drive one kind of shell over pipes.
type Flavor struct {
	Name   string
	Binary string
	Args   []string

	// done prints the completion marker followed by the last exit status.
	done func(marker string) string
	// cd changes directory.
	cd func(path string) string
	// pwd prints the working directory.
	pwd string
}

// Posix returns a flavor for sh-compatible shells.
func Posix(binary string) Flavor {
	f := Flavor{
		Name:   "posix",
		Binary: binary,
		done:   func(m string) string { return fmt.Sprintf(`echo "%s $?"`, m) },
		cd:     func(p string) string { return "cd " + posixQuote(p) },
		pwd:    "pwd",
	}
	if strings.HasPrefix(filepath.Base(binary), "fish") {
		f.done = func(m string) string { return fmt.Sprintf(`echo "%s $status"`, m) }
	}
	return f
}

// posixQuote single-quotes s so the shell takes it literally.
func posixQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Cmd returns the Windows cmd.exe flavor.
func Cmd() Flavor {
	return Flavor{
		Name:   "cmd",
		Binary: "cmd",
		Args:   []string{"/Q"},
		done:   func(m string) string { return fmt.Sprintf("echo %s %%errorlevel%%", m) },
		cd:     func(p string) string { return fmt.Sprintf(`cd /d "%s"`, p) },
		pwd:    "cd",
	}
}

// PowerShell returns the PowerShell flavor for the given binary (pwsh or
// powershell).
func PowerShell(binary string) Flavor {
	return Flavor{
		Name:   "powershell",
		Binary: binary,
		Args:   []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command", "-"},
		done: func(m string) string {
			return fmt.Sprintf(`Write-Output "%s $(if ($?) { 0 } else { 1 })"`, m)
		},
		cd: func(p string) string {
			return fmt.Sprintf(`Set-Location -LiteralPath '%s'`, strings.ReplaceAll(p, "'", "''"))
		},
		pwd: "(Get-Location).Path",
	}
}

// DetectShell picks the user's shell: $SHELL (or the override), falling back
// to /bin/bash, and cmd on Windows.
func DetectShell(override string) Flavor {
	if override != "" {
		return FlavorFor(override)
	}
	if runtime.GOOS == "windows" {
		return Cmd()
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return FlavorFor(sh)
	}
	return Posix("/bin/bash")
}

// FlavorFor maps a shell binary to its flavor.
func FlavorFor(binary string) Flavor {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(binary)), ".exe")
	switch base {
	case "pwsh", "powershell":
		return PowerShell(binary)
	case "cmd":
		return Cmd()
	default:
		return Posix(binary)
	}
}

// FindPowerShell locates pwsh or Windows PowerShell on PATH.
func FindPowerShell() (Flavor, error) {
	for _, name := range []string{"pwsh", "powershell"} {
		if path, err := exec.LookPath(name); err == nil {
			return PowerShell(path), nil
		}
	}
	return Flavor{}, fmt.Errorf("%w: PowerShell is not installed (looked for pwsh, powershell)", ErrUnavailable)
}
