// Package scaffold provides the planning-phase capabilities for project
// scaffolding: asking the user a clarifying question and fetching a
// framework setup script.
package scaffold

import (
	"context"
	"embed"
	"errors"
	"sort"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// Names of the scaffolding capabilities.
const (
	AskUser              = "ask_user"
	GetFrameworkTemplate = "get_framework_template"
)

//go:embed templates/*.sh
var templateFS embed.FS

// Frameworks lists the supported framework names.
func Frameworks() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".sh")
		if name == "prerequisites" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template returns the setup script for a framework: the shared
// prerequisites followed by the framework's project setup. Names are
// matched case-insensitively; a trailing "_template" is ignored.
func Template(framework string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(framework))
	name = strings.TrimSuffix(name, "_template")
	name = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(name)
	if name == "" || name == "prerequisites" {
		return "", false
	}

	setup, err := templateFS.ReadFile("templates/" + name + ".sh")
	if err != nil {
		return "", false
	}
	prereq, _ := templateFS.ReadFile("templates/prerequisites.sh")
	return string(prereq) + "\n" + string(setup), true
}

// FrameworkTemplateTool returns the embedded setup script for a framework.
func FrameworkTemplateTool() *tools.Tool {
	return &tools.Tool{
		Name:        GetFrameworkTemplate,
		Description: "Get the reference setup script (prerequisites, project creation, dev server) for a web framework",
		Category:    tools.CategoryScaffold,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			framework := types.ArgString(args, "framework")
			script, ok := Template(framework)
			if !ok {
				return "", tools.Errorf(tools.KindNotFound, "Framework not supported: %q (supported: %s)", framework, strings.Join(Frameworks(), ", "))
			}
			logging.ToolsDebug("get_framework_template: %s (%d bytes)", framework, len(script))
			return "The setup script for " + framework + " is:\n" + script, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"framework"},
			Properties: map[string]tools.Property{
				"framework": {
					Type:        "string",
					Description: "Framework name, one of: " + strings.Join(Frameworks(), ", "),
				},
			},
		},
	}
}

// AskUserTool asks the human a clarifying question out-of-band.
func AskUserTool(input types.InputFunc) *tools.Tool {
	return &tools.Tool{
		Name:        AskUser,
		Description: "Ask the user a clarifying question and wait for the answer. Use only when a decision cannot be made from context.",
		Category:    tools.CategoryScaffold,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			question := strings.TrimSpace(types.ArgString(args, "question"))
			if question == "" {
				return "", tools.Errorf(tools.KindInvalidArgument, "question is required")
			}
			if input == nil {
				return "", tools.Errorf(tools.KindUnavailable, "no user is available to answer; proceed with sensible defaults and state them")
			}

			answer, err := input(ctx, question)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", tools.Errorf(tools.KindFailed, "question was not answered: %v", err).Wrap(err)
				}
				return "", tools.Errorf(tools.KindUnavailable, "could not reach the user: %v", err).Wrap(err)
			}
			answer = strings.TrimSpace(answer)
			if answer == "" {
				return "The user gave no answer; proceed with sensible defaults.", nil
			}
			return "User answered: " + answer, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"question"},
			Properties: map[string]tools.Property{
				"question": {
					Type:        "string",
					Description: "The question to ask",
				},
			},
		},
	}
}

// RegisterAll registers the scaffolding tools with the given registry.
func RegisterAll(registry *tools.Registry, input types.InputFunc) error {
	for _, tool := range []*tools.Tool{AskUserTool(input), FrameworkTemplateTool()} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
