package standard

import (
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// colorEnabled reports whether out is an interactive terminal.
func colorEnabled(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func healthLabel(out io.Writer, healthy bool) string {
	label := "unavailable"
	style := failStyle
	if healthy {
		label, style = "ok", okStyle
	}
	if !colorEnabled(out) {
		return label
	}
	return style.Render(label)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
