package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/widget"
)

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	s := m.w.Snapshot()
	if s.State == widget.StateClosed {
		return dimStyle.Render("Chat closed. Press o to open, q to quit.") + "\n"
	}

	header := titleStyle.Render(s.Title)
	footer := m.renderFooter(s)

	var body []string
	if s.PickerVisible {
		body = m.renderPicker(s)
	} else {
		body = m.renderMessages(s)
	}

	// Keep the newest lines when the log outgrows the screen.
	if m.height > 0 {
		avail := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 1
		if avail > 0 && len(body) > avail {
			body = body[len(body)-avail:]
		}
	}

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(strings.Join(body, "\n"))
	b.WriteString("\n")
	b.WriteString(footer)
	return b.String()
}

func (m *model) renderMessages(s widget.Snapshot) []string {
	width := max(20, m.width-2)
	var lines []string
	for _, msg := range s.Messages {
		lines = append(lines, "")
		if msg.Sender == conversation.SenderUser {
			lines = append(lines, userRoleStyle.Render("You"))
		} else {
			lines = append(lines, agentRoleStyle.Render("Assistant"))
		}
		lines = append(lines, strings.Split(wordwrap.String(msg.Text, width), "\n")...)
	}
	if s.RequestInFlight {
		lines = append(lines, "", m.spinner.View()+thinkingStyle.Render(" thinking..."))
	}
	return lines
}

func (m *model) renderPicker(s widget.Snapshot) []string {
	lines := []string{"", dimStyle.Render("Select a task:")}
	if m.loading && len(s.Tasks) == 0 {
		return append(lines, dimStyle.Render("Loading tasks..."))
	}
	if s.PickerNotice != "" {
		return append(lines, s.PickerNotice)
	}

	width := max(20, m.width-4)
	for i, t := range s.Tasks {
		row := fmt.Sprintf("#%d  %s", t.ID, t.Title)
		if s.PickerDefault != nil && s.PickerDefault.ID == t.ID {
			row += "  (last used)"
		}
		if r := []rune(row); len(r) > width {
			row = string(r[:width-2]) + ".."
		}
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render(row))
		} else {
			lines = append(lines, normalStyle.Render(row))
		}
	}
	return lines
}

func (m *model) renderFooter(s widget.Snapshot) string {
	var b strings.Builder
	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status) + "\n")
	}
	if !s.PickerVisible {
		b.WriteString(inputBorderStyle.Width(max(10, m.width)).Render(m.input.View()) + "\n")
	}
	b.WriteString(helpStyle.Render(helpText(s)))
	return b.String()
}

func helpText(s widget.Snapshot) string {
	switch s.State {
	case widget.StatePicker:
		return "↑/↓ move  enter select  esc back  ctrl+r refresh  ctrl+g app guide"
	case widget.StateTask:
		return "enter send  ctrl+t switch task  ctrl+g app guide  esc close  ctrl+c quit"
	default:
		return "enter send  ctrl+t task mode  ctrl+r refresh tasks  esc close  ctrl+c quit"
	}
}
