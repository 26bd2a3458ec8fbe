package chat

import (
	"fmt"
	"strings"
)

// safeRenderMarkdown renders markdown, falling back to plain text when
// glamour fails or panics on odd input.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return content
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	for i, e := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch e.Role {
		case RoleUser:
			sb.WriteString(m.styles.User.Render("you › "))
			sb.WriteString(e.Content)
		case RoleQuestion:
			sb.WriteString(m.styles.Question.Render("? "))
			sb.WriteString(e.Content)
		case RoleError:
			sb.WriteString(m.styles.Error.Render("✗ " + e.Content))
		default:
			sb.WriteString(m.styles.Assistant.Render("termcoder ›"))
			sb.WriteString("\n")
			if e.Markdown {
				sb.WriteString(m.safeRenderMarkdown(e.Content))
			} else {
				sb.WriteString(e.Content)
			}
		}
	}
	return sb.String()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	header := m.styles.Header.Render("termcoder")
	if m.cfg.Model != "" {
		header += m.styles.Thread.Render(m.cfg.Model + "  ")
	}
	if m.cfg.ThreadID != "" {
		header += m.styles.Thread.Render("thread " + m.cfg.ThreadID)
	}

	status := ""
	switch {
	case m.pending != nil:
		status = m.styles.Question.Render("Answer the question above and press Enter")
	case m.busy:
		status = fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Status.Render(m.status))
	}

	help := "enter send • alt+enter newline • pgup/pgdn scroll • ctrl+c quit"
	if m.busy {
		help = "esc cancel • " + help
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		status,
		m.styles.Input.Render(m.textarea.View()),
		m.styles.Help.Render(help),
	}, "\n")
}
