package banner

import (
	"stageq/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

// GetString returns the styled ASCII banner shown above the help text.
func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
     _                          
 ___| |_ __ _  __ _  ___  __ _ 
/ __| __/ _' |/ _' |/ _ \/ _' |
\__ \ || (_| | (_| |  __/ (_| |
|___/\__\__,_|\__, |\___|\__, |
              |___/         |_|`

	return "\n" + style.Render(ascii) + "\n" + styles.Subtle.Render("staged concurrent load tests") + "\n"
}
