package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/tactile"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// Names of the shell capabilities.
const (
	RunShell            = "run_shell"
	RunPowerShell       = "run_powershell"
	GetCurrentDirectory = "get_current_directory"
	ChangeDirectory     = "change_directory"
	ResetDirectory      = "reset_directory"
)

// maxOutput caps command output returned to the model.
const maxOutput = 50000

// Sessions is the slice of tactile.Manager the tools need.
type Sessions interface {
	Execute(ctx context.Context, kind tactile.Kind, command string, interactive bool) (*tactile.Result, error)
	ChangeDirectory(ctx context.Context, kind tactile.Kind, path string) (string, error)
	CurrentDirectory(ctx context.Context, kind tactile.Kind) (string, error)
	ResetDirectory(ctx context.Context, kind tactile.Kind) (string, error)
}

var kindProperty = tools.Property{
	Type:        "string",
	Description: "Which session: shell (default) or powershell",
	Default:     string(tactile.KindShell),
	Enum:        []any{string(tactile.KindShell), string(tactile.KindPowerShell)},
}

// RunShellTool returns a tool running a command in the persistent shell.
func RunShellTool(sessions Sessions) *tools.Tool {
	return &tools.Tool{
		Name:        RunShell,
		Description: "Run a command in the user's persistent shell session. State (cwd, variables) carries across calls. Set interactive when the command may ask questions; prompts are forwarded to the user.",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return runCommand(ctx, sessions, tactile.KindShell, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
				"interactive": {
					Type:        "boolean",
					Description: "Watch for prompts that need human input (default: false)",
					Default:     false,
				},
			},
		},
	}
}

// RunPowerShellTool returns a tool running a command in a persistent
// PowerShell session.
func RunPowerShellTool(sessions Sessions) *tools.Tool {
	return &tools.Tool{
		Name:        RunPowerShell,
		Description: "Run a command in a persistent PowerShell session (pwsh or Windows PowerShell). Fails if PowerShell is not installed.",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return runCommand(ctx, sessions, tactile.KindPowerShell, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The PowerShell command to execute",
				},
				"interactive": {
					Type:        "boolean",
					Description: "Watch for prompts that need human input (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func runCommand(ctx context.Context, sessions Sessions, kind tactile.Kind, args map[string]any) (string, error) {
	command := strings.TrimSpace(types.ArgString(args, "command"))
	if command == "" {
		return "", tools.Errorf(tools.KindInvalidArgument, "command is required")
	}
	interactive := types.ArgBool(args, "interactive", false)

	logging.ToolsDebug("%s: cmd=%s, interactive=%v", kind, command, interactive)

	res, err := sessions.Execute(ctx, kind, command, interactive)
	if err != nil && !errors.Is(err, tactile.ErrTimeout) {
		return partial(res), sessionError(kind, err)
	}

	out := FormatResult(res)
	if errors.Is(err, tactile.ErrTimeout) {
		out += "\n[WARN] Command still running after the time limit; output may be incomplete."
	}
	logging.Tools("%s completed: %s (%d bytes output)", kind, command, len(out))
	return out, nil
}

// FormatResult renders a command result for the model and the user.
func FormatResult(res *tactile.Result) string {
	if res == nil {
		return ""
	}
	out := strings.TrimRight(res.Output, "\r\n")
	if len(out) > maxOutput {
		out = out[:maxOutput] + "\n...[truncated]"
	}
	if out == "" {
		out = "[INFO] Command completed with no output."
	}
	if res.ExitCode > 0 {
		out += fmt.Sprintf("\n[exit status %d]", res.ExitCode)
	}
	return out
}

func partial(res *tactile.Result) string {
	if res == nil {
		return ""
	}
	return res.Output
}

// sessionError classifies tactile failures: a missing or dead shell is
// fatal, everything else is an observation.
func sessionError(kind tactile.Kind, err error) error {
	switch {
	case errors.Is(err, tactile.ErrUnavailable):
		return tools.Fatalf(tools.KindUnavailable, "%s is not available on this system: %v", kind, err).Wrap(err)
	case errors.Is(err, tactile.ErrNotRunning):
		return tools.Fatalf(tools.KindUnavailable, "%s session is not running: %v", kind, err).Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return tools.Errorf(tools.KindFailed, "%s command interrupted: %v", kind, err).Wrap(err)
	default:
		return tools.Errorf(tools.KindFailed, "%s command failed: %v", kind, err).Wrap(err)
	}
}

func kindArg(args map[string]any) tactile.Kind {
	if types.ArgString(args, "shell") == string(tactile.KindPowerShell) {
		return tactile.KindPowerShell
	}
	return tactile.KindShell
}

// CurrentDirectoryTool reports a session's working directory.
func CurrentDirectoryTool(sessions Sessions) *tools.Tool {
	return &tools.Tool{
		Name:        GetCurrentDirectory,
		Description: "Get the working directory of the shell (or PowerShell) session",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			kind := kindArg(args)
			dir, err := sessions.CurrentDirectory(ctx, kind)
			if err != nil {
				return "", sessionError(kind, err)
			}
			return dir, nil
		},
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{"shell": kindProperty},
		},
	}
}

// ChangeDirectoryTool changes a session's working directory.
func ChangeDirectoryTool(sessions Sessions) *tools.Tool {
	return &tools.Tool{
		Name:        ChangeDirectory,
		Description: "Change the working directory of the shell (or PowerShell) session",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := types.ArgString(args, "path")
			if path == "" {
				return "", tools.Errorf(tools.KindInvalidArgument, "path is required")
			}
			kind := kindArg(args)
			dir, err := sessions.ChangeDirectory(ctx, kind, path)
			if err != nil {
				if errors.Is(err, tactile.ErrUnavailable) || errors.Is(err, tactile.ErrNotRunning) {
					return "", sessionError(kind, err)
				}
				return "", tools.Errorf(tools.KindNotFound, "Directory '%s' does not exist or is not accessible: %v", path, err).Wrap(err)
			}
			return "Changed directory to: " + dir, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Target directory",
				},
				"shell": kindProperty,
			},
		},
	}
}

// ResetDirectoryTool returns a session to the workspace root.
func ResetDirectoryTool(sessions Sessions) *tools.Tool {
	return &tools.Tool{
		Name:        ResetDirectory,
		Description: "Reset the shell (or PowerShell) session to the directory it started in",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			kind := kindArg(args)
			dir, err := sessions.ResetDirectory(ctx, kind)
			if err != nil {
				return "", sessionError(kind, err)
			}
			return "Reset directory to: " + dir, nil
		},
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{"shell": kindProperty},
		},
	}
}

// RegisterAll registers all shell tools with the given registry.
func RegisterAll(registry *tools.Registry, sessions Sessions) error {
	allTools := []*tools.Tool{
		RunShellTool(sessions),
		RunPowerShellTool(sessions),
		CurrentDirectoryTool(sessions),
		ChangeDirectoryTool(sessions),
		ResetDirectoryTool(sessions),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
