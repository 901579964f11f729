// Package ui holds the terminal styles shared by command output.
//
// [Palette] wraps named [lipgloss.Style] values. Output written to a non-terminal is left unstyled by lipgloss.
package ui
