package markup

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Renderer turns markup into output text.
type Renderer interface {
	Render(markup string) string
}

// Plain renders markup as bare text.
type Plain struct{}

func (Plain) Render(s string) string { return Strip(s) }

// ANSI renders markup with terminal escape sequences for a fixed color
// profile. It is safe for concurrent use.
type ANSI struct {
	r *lipgloss.Renderer
}

// NewANSI creates an ANSI renderer for profile. termenv.Ascii yields plain
// text, termenv.TrueColor keeps the exact hex colors.
func NewANSI(profile termenv.Profile) *ANSI {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(profile)
	r.SetHasDarkBackground(true)
	return &ANSI{r: r}
}

// DetectANSI creates an ANSI renderer for the profile of w, typically
// os.Stdout.
func DetectANSI(w io.Writer) *ANSI {
	return NewANSI(termenv.NewOutput(w).EnvColorProfile())
}

func (a *ANSI) style(st Style) lipgloss.Style {
	ls := a.r.NewStyle()
	if st.Color != "" {
		ls = ls.Foreground(lipgloss.Color(st.Color))
	}
	return ls.Bold(st.Bold).
		Italic(st.Italic).
		Underline(st.Underlined).
		Strikethrough(st.Strikethrough)
}

func (a *ANSI) Render(s string) string {
	var sb strings.Builder
	for _, sp := range Parse(s) {
		if sp.Style == (Style{}) {
			sb.WriteString(sp.Text)
			continue
		}
		sb.WriteString(a.style(sp.Style).Render(sp.Text))
	}
	return sb.String()
}

// ForMode returns the renderer for a settings value ("plain" or "ansi").
// Unknown modes fall back to Plain.
func ForMode(mode string, w io.Writer) Renderer {
	if mode == "ansi" {
		return DetectANSI(w)
	}
	return Plain{}
}
