package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Summary line styles for the patch command.
var (
	Label   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	Path    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Smoke.Hex()))
	OK      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Guac.Hex()))
	Skipped = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	Failed  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Cheeky.Hex()))
	Dim     = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Squid.Hex()))
)
