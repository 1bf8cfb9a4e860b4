// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package term renders status lines and transfer progress for the terminal.
package term

import "github.com/charmbracelet/lipgloss"

var (
	Green  = lipgloss.Color("#10B981")
	Yellow = lipgloss.Color("#F59E0B")
	Red    = lipgloss.Color("#EF4444")
	Cyan   = lipgloss.Color("#22D3EE")

	// Info is used for progress and success lines.
	Info = lipgloss.NewStyle().Foreground(Green)

	// Notice is used for fallbacks and missing-item warnings.
	Notice = lipgloss.NewStyle().Foreground(Yellow)

	// Problem is used for failures and invalid input.
	Problem = lipgloss.NewStyle().Foreground(Red)

	// Prompt is used for menus and input prompts.
	Prompt = lipgloss.NewStyle().Foreground(Cyan)

	// Title is used for the per-item heading above a progress bar.
	Title = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
)

// PercentColor grades a completion ratio from red at 0 to green at 1.
func PercentColor(ratio float64) lipgloss.Color {
	switch {
	case ratio < 0.1:
		return lipgloss.Color("#FF0000")
	case ratio < 0.2:
		return lipgloss.Color("#FF3300")
	case ratio < 0.3:
		return lipgloss.Color("#FF6600")
	case ratio < 0.4:
		return lipgloss.Color("#FF9900")
	case ratio < 0.5:
		return lipgloss.Color("#FFCC00")
	case ratio < 0.6:
		return lipgloss.Color("#FFFF00")
	case ratio < 0.7:
		return lipgloss.Color("#CCFF00")
	case ratio < 0.8:
		return lipgloss.Color("#99FF00")
	case ratio < 0.9:
		return lipgloss.Color("#66FF00")
	case ratio < 0.99:
		return lipgloss.Color("#33FF00")
	default:
		return lipgloss.Color("#00FF00")
	}
}
