package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive colors, resolved once from GLAMOUR_STYLE or the terminal
// background
var (
	colorPrimary   lipgloss.Color
	colorSecondary lipgloss.Color
	colorSuccess   lipgloss.Color
	colorWarning   lipgloss.Color
	colorError     lipgloss.Color
	colorInfo      lipgloss.Color
	colorTextMuted lipgloss.Color
)

var (
	styleTitle    lipgloss.Style
	styleSubtitle lipgloss.Style
	styleSuccess  lipgloss.Style
	styleWarning  lipgloss.Style
	styleError    lipgloss.Style
	styleInfo     lipgloss.Style
	styleMetadata lipgloss.Style
)

func init() {
	initializeColors()
	initializeStyles()
}

func initializeColors() {
	switch os.Getenv("GLAMOUR_STYLE") {
	case "light":
		setLightThemeColors()
		return
	case "dark":
		setDarkThemeColors()
		return
	}

	if lipgloss.HasDarkBackground() {
		setDarkThemeColors()
	} else {
		setLightThemeColors()
	}
}

func setDarkThemeColors() {
	colorPrimary = lipgloss.Color("205")
	colorSecondary = lipgloss.Color("33")
	colorSuccess = lipgloss.Color("10")
	colorWarning = lipgloss.Color("11")
	colorError = lipgloss.Color("9")
	colorInfo = lipgloss.Color("12")
	colorTextMuted = lipgloss.Color("244")
}

func setLightThemeColors() {
	colorPrimary = lipgloss.Color("125")
	colorSecondary = lipgloss.Color("24")
	colorSuccess = lipgloss.Color("22")
	colorWarning = lipgloss.Color("136")
	colorError = lipgloss.Color("160")
	colorInfo = lipgloss.Color("24")
	colorTextMuted = lipgloss.Color("240")
}

// initializeStyles must run after the colors are set
func initializeStyles() {
	styleTitle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSubtitle = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleInfo = lipgloss.NewStyle().Foreground(colorInfo)
	styleMetadata = lipgloss.NewStyle().Foreground(colorTextMuted).Italic(true)
}

// statusType selects the style used by status
type statusType string

const (
	statusSuccess statusType = "success"
	statusWarning statusType = "warning"
	statusError   statusType = "error"
	statusInfo    statusType = "info"
)

func status(text string, kind statusType) string {
	switch kind {
	case statusSuccess:
		return styleSuccess.Render(text)
	case statusWarning:
		return styleWarning.Render(text)
	case statusError:
		return styleError.Render(text)
	case statusInfo:
		return styleInfo.Render(text)
	default:
		return text
	}
}

func title(text string) string {
	return styleTitle.Render(text)
}

func subtitle(text string) string {
	return styleSubtitle.Render(text)
}

func metadata(text string) string {
	return styleMetadata.Render(text)
}
