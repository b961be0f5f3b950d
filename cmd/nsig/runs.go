package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"novel_signals/internal/db"
	"novel_signals/internal/workspace"
)

var (
	runsDB    string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded analysis runs",
	Long: `List analysis runs from the registry database, newest first.

Each row shows the run id, novel id, status, start time, and the
top resolved genres.

Examples:
  nsig runs
  nsig runs --limit 5
  nsig runs --db /tmp/registry.db`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVar(&runsDB, "db", "", "Run registry database (default: <workspace>/registry.db)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	dbPath := runsDB
	if dbPath == "" {
		root, err := workspace.EnsureDefault()
		if err != nil {
			return fmt.Errorf("prepare workspace: %w", err)
		}
		dbPath = filepath.Join(root, "registry.db")
	}

	recs, err := db.ListRuns(dbPath, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	// LipGloss signature purple/pink palette
	var (
		headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
		idColor      = lipgloss.Color("#BD93F9") // Purple
		statusColor  = lipgloss.Color("#FF79C6") // Pink
		labelColor   = lipgloss.Color("#E9E9F4") // Light purple/white
		borderColor  = lipgloss.Color("#6272A4") // Muted purple
		summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
	)

	const (
		runWidth    = 10
		novelWidth  = 20
		statusWidth = 22
		dateWidth   = 16
		labelsWidth = 38
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)

	headers := []string{
		headerStyle.Width(runWidth).Render("RUN"),
		headerStyle.Width(novelWidth).Render("NOVEL"),
		headerStyle.Width(statusWidth).Render("STATUS"),
		headerStyle.Width(dateWidth).Render("STARTED"),
		headerStyle.Width(labelsWidth).Render("GENRES"),
	}
	fmt.Println(strings.Join(headers, borderStyle.Render("│")))

	separatorParts := []string{
		strings.Repeat("─", runWidth),
		strings.Repeat("─", novelWidth),
		strings.Repeat("─", statusWidth),
		strings.Repeat("─", dateWidth),
		strings.Repeat("─", labelsWidth),
	}
	fmt.Println(borderStyle.Render(strings.Join(separatorParts, "┼")))

	idStyle := lipgloss.NewStyle().
		Foreground(idColor).
		Padding(0, 1).
		Width(runWidth)

	novelStyle := lipgloss.NewStyle().
		Foreground(idColor).
		Padding(0, 1).
		Width(novelWidth)

	statusStyle := lipgloss.NewStyle().
		Foreground(statusColor).
		Padding(0, 1).
		Width(statusWidth)

	dateStyle := lipgloss.NewStyle().
		Foreground(labelColor).
		Padding(0, 1).
		Width(dateWidth)

	labelsStyle := lipgloss.NewStyle().
		Foreground(labelColor).
		Padding(0, 1).
		Width(labelsWidth)

	for _, rec := range recs {
		cells := []string{
			idStyle.Render(shortID(rec.RunID)),
			novelStyle.Render(rec.NovelID),
			statusStyle.Render(rec.Status),
			dateStyle.Render(startedAt(rec.StartedAt)),
			labelsStyle.Render(topGenres(rec.Labels)),
		}
		fmt.Println(strings.Join(cells, borderStyle.Render("│")))
	}

	fmt.Println()
	summaryStyle := lipgloss.NewStyle().
		Foreground(summaryColor).
		Italic(true)
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Total: %d runs in %s", len(recs), dbPath)))

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func startedAt(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Jan 02, 15:04")
}

// topGenres renders up to three genre-tier labels. Labels arrive sorted
// by tier, then confidence descending.
func topGenres(labels []db.Label) string {
	parts := make([]string, 0, 3)
	for _, l := range labels {
		if l.Tier != "genre" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %.2f", l.DisplayName, l.Confidence))
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
