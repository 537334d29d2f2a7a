package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/liliang-cn/noise/internal/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AFD75F"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	noiseStyle  = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("#FF8700"))
	statStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)
)

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return userStyle.Render("you")
	case domain.RoleAssistant:
		return botStyle.Render("assistant")
	}
	return mutedStyle.Render(string(r))
}

// sourcesLine describes the retrieval provenance of an assistant message
func sourcesLine(meta *domain.MessageMeta) string {
	if meta == nil || !meta.RAGEnabled {
		return ""
	}
	if len(meta.RAGSources) == 0 {
		return mutedStyle.Render("RAG: no context found")
	}
	parts := make([]string, len(meta.RAGSources))
	for i, s := range meta.RAGSources {
		parts[i] = fmt.Sprintf("%s (%d)", s.Title, s.Count)
	}
	return mutedStyle.Render("RAG: " + strings.Join(parts, ", "))
}

func printMessage(w io.Writer, m domain.ChatMessage) {
	fmt.Fprintf(w, "%s %s\n", roleLabel(m.Role), mutedStyle.Render(m.CreatedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintln(w, m.Content)
	if line := sourcesLine(m.Meta); line != "" {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
