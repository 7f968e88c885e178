package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

// barWidth is the width of a 100% agreement bar.
const barWidth = 30

var (
	colorMuted   = lipgloss.Color("#6B7280")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorSuccess = lipgloss.Color("#10B981")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	enabledStyle = lipgloss.NewStyle().Foreground(colorSuccess)
)

// renderSubmission prints ranked groups, each in its palette color, followed
// by failures and warnings.
func renderSubmission(prompt string, sub *domain.Submission, models []domain.Model) string {
	names := make(map[string]string, len(models))
	for _, m := range models {
		names[m.Slug] = m.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", titleStyle.Render("Prompt:"), prompt)

	for i, g := range sub.Groups {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(g.Color))
		label := g.Key
		if label == "" {
			label = "(empty)"
		}

		filled := int(g.Percentage / 100 * barWidth)
		bar := style.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))

		fmt.Fprintf(&b, "%2d. %s %s %5.1f%% (%d)\n", i+1, style.Bold(true).Render(label), bar, g.Percentage, g.Count)

		members := make([]string, len(g.Members))
		for j, slug := range g.Members {
			members[j] = displayName(names, slug)
		}
		fmt.Fprintf(&b, "    %s\n", mutedStyle.Render(strings.Join(members, ", ")))
	}

	if len(sub.Failures) > 0 {
		fmt.Fprintf(&b, "\n%s\n", errorStyle.Render("Failed:"))
		for _, f := range sub.Failures {
			name := f.Model.Name
			if name == "" {
				name = f.ModelID
			}
			fmt.Fprintf(&b, "  %s %s: %s\n", name, mutedStyle.Render("["+string(f.Kind)+"]"), f.Message)
		}
	}

	for _, w := range sub.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warningStyle.Render("warning:"), w.Message)
	}
	return b.String()
}

func displayName(names map[string]string, slug string) string {
	if name, ok := names[slug]; ok && name != "" {
		return name
	}
	return slug
}

// renderModels prints one model per line.
func renderModels(models []domain.Model) string {
	if len(models) == 0 {
		return mutedStyle.Render("no models registered") + "\n"
	}

	idWidth, slugWidth, providerWidth := len("ID"), len("SLUG"), len("PROVIDER")
	for _, m := range models {
		idWidth = max(idWidth, len(m.ID))
		slugWidth = max(slugWidth, len(m.Slug))
		providerWidth = max(providerWidth, len(m.Provider))
	}

	var b strings.Builder
	row := func(id, slug, provider, name, state string) {
		fmt.Fprintf(&b, "%-*s  %-*s  %-*s  %s  %s\n", idWidth, id, slugWidth, slug, providerWidth, provider, state, name)
	}
	row("ID", "SLUG", "PROVIDER", "NAME", "ON ")
	for _, m := range models {
		state := mutedStyle.Render("off")
		if m.Enabled {
			state = enabledStyle.Render("on ")
		}
		row(m.ID, m.Slug, m.Provider, m.Name, state)
	}
	return b.String()
}

// renderError formats a command error for the terminal.
func renderError(err error) string {
	var all *domain.AllModelsFailedError
	if errors.As(err, &all) {
		var b strings.Builder
		b.WriteString(errorStyle.Render("Error: every model failed"))
		for _, f := range all.Failures {
			name := f.Model.Name
			if name == "" {
				name = f.ModelID
			}
			fmt.Fprintf(&b, "\n  %s [%s]: %s", name, f.Kind, f.Message)
		}
		return b.String()
	}

	var unknown *application.UnknownModelError
	if errors.As(err, &unknown) {
		return errorStyle.Render("Error: "+err.Error()) + "\n" +
			mutedStyle.Render("run 'consensus models list' to see registered models")
	}
	return errorStyle.Render("Error: " + err.Error())
}
