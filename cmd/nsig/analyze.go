package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"novel_signals/internal/chapters"
	"novel_signals/internal/db"
	"novel_signals/internal/ingest"
	"novel_signals/internal/pipeline"
	"novel_signals/internal/rules"
	"novel_signals/internal/workspace"
)

var (
	analyzeNovelID  string
	analyzeRoot     string
	analyzeDB       string
	analyzeJobs     int
	analyzeSkipRels bool
	analyzeSkipKw   bool
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [manuscript]",
	Short: "Analyze a manuscript and publish its signal artifacts",
	Long: `Analyze a manuscript (txt, md, docx or pdf) and publish its signal artifacts.

The pipeline runs these stages:
- character_index: surface-form name mentions per chapter
- character_salience: composite prominence scores
- relationship_matrix: sentence co-occurrence pair signals
- event_keywords: dictionary keyword scan
- genre_resolved / tag_resolved: rule-table label resolution

Artifacts land under <workspace>/runs/<novel_id>/<run_id>/ and the run is
recorded in the registry database.

Examples:
  nsig analyze drafts/ascension.txt
  nsig analyze drafts/ascension.txt --novel-id novel_7f3a09 --json
  nsig analyze drafts/ascension.docx --skip-relationships --jobs 8`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeNovelID, "novel-id", "", "Stable novel identifier (default: derived from the manuscript title)")
	analyzeCmd.Flags().StringVar(&analyzeRoot, "workspace", "", "Workspace root (default: NSIG_WORKSPACE or ~/.novel_signals)")
	analyzeCmd.Flags().StringVar(&analyzeDB, "db", "", "Run registry database (default: <workspace>/registry.db)")
	analyzeCmd.Flags().IntVar(&analyzeJobs, "jobs", 0, "Worker count for chapter scans (default: NSIG_JOBS or CPU count)")
	analyzeCmd.Flags().BoolVar(&analyzeSkipRels, "skip-relationships", false, "Skip the relationship matrix stage")
	analyzeCmd.Flags().BoolVar(&analyzeSkipKw, "skip-keywords", false, "Skip the event keyword stage")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the run report as JSON instead of a table")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]

	m, err := ingest.Load(path)
	if err != nil {
		return fmt.Errorf("load manuscript: %w", err)
	}
	chs := chapters.Split(m.Text)

	var root string
	if analyzeRoot != "" {
		root, err = workspace.EnsureAt(analyzeRoot)
	} else {
		root, err = workspace.EnsureDefault()
	}
	if err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}

	cfg := resolvedConfig(root)
	tables, err := pipeline.LoadDefaultTables()
	if err != nil {
		return fmt.Errorf("load dictionaries: %w", err)
	}

	novelID := analyzeNovelID
	if novelID == "" {
		novelID = workspace.NovelIDFor(m.Title)
	}

	rep := pipeline.Run(pipeline.Input{
		NovelID:  novelID,
		Source:   path,
		Chapters: chs,
	}, tables, cfg, nil)

	runDir, err := workspace.RunDir(root, novelID, rep.RunID)
	if err != nil {
		return fmt.Errorf("prepare run directory: %w", err)
	}
	if err := saveArtifacts(runDir, rep); err != nil {
		return err
	}

	dbPath := analyzeDB
	if dbPath == "" {
		dbPath = filepath.Join(root, "registry.db")
	}
	if err := db.PersistRun(dbPath, runRecord(rep)); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printSummary(rep, runDir)
	return nil
}

// resolvedConfig layers run settings: flags override NSIG_* environment
// variables, which override workspace settings.json, which overrides the
// built-in defaults.
func resolvedConfig(root string) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if s, err := workspace.LoadSettings(root); err == nil {
		if os.Getenv("NSIG_CONFIDENCE_THRESHOLD") == "" && s.ConfidenceThreshold > 0 {
			cfg.ConfidenceThreshold = s.ConfidenceThreshold
		}
		if os.Getenv("NSIG_JOBS") == "" && s.Jobs > 0 {
			cfg.Workers = s.Jobs
		}
	}
	if analyzeJobs > 0 {
		cfg.Workers = analyzeJobs
	}
	if analyzeSkipRels {
		cfg.SkipRelationships = true
	}
	if analyzeSkipKw {
		cfg.SkipKeywords = true
	}
	return cfg
}

func saveArtifacts(runDir string, rep *pipeline.Report) error {
	type artifact struct {
		name string
		v    any
	}
	var arts []artifact
	if rep.Index != nil {
		arts = append(arts, artifact{"character_index", rep.Index})
	}
	if rep.Salience != nil {
		arts = append(arts, artifact{"character_salience", rep.Salience})
	}
	if rep.Matrix != nil {
		arts = append(arts, artifact{"relationship_matrix", rep.Matrix})
	}
	if rep.Keywords != nil {
		arts = append(arts, artifact{"event_keywords", rep.Keywords})
	}
	if rep.Genres != nil {
		arts = append(arts, artifact{"genre_resolved", rep.Genres})
	}
	if rep.Tags != nil {
		arts = append(arts, artifact{"tag_resolved", rep.Tags})
	}
	for _, a := range arts {
		if _, err := workspace.SaveArtifact(runDir, a.name, a.v); err != nil {
			return fmt.Errorf("save %s: %w", a.name, err)
		}
	}
	if _, err := workspace.SaveReport(runDir, rep); err != nil {
		return fmt.Errorf("save run report: %w", err)
	}
	return nil
}

func runRecord(rep *pipeline.Report) db.RunRecord {
	rec := db.RunRecord{
		RunID:       rep.RunID,
		NovelID:     rep.NovelID,
		Source:      rep.Source,
		Status:      rep.Status,
		StartedAt:   rep.StartedAt.Format(time.RFC3339),
		CompletedAt: rep.CompletedAt.Format(time.RFC3339),
		Chapters:    rep.Chapters,
		Characters:  rep.Characters,
		Keywords:    rep.KeywordsHit,
	}
	rec.Labels = append(rec.Labels, labelsFor("genre", rep.Genres)...)
	rec.Labels = append(rec.Labels, labelsFor("tag", rep.Tags)...)
	return rec
}

func labelsFor(tier string, res *rules.Resolution) []db.Label {
	if res == nil {
		return nil
	}
	out := make([]db.Label, 0, len(res.Resolved))
	for _, r := range res.Resolved {
		out = append(out, db.Label{
			Tier:        tier,
			LabelID:     r.ID,
			DisplayName: r.DisplayName,
			Confidence:  r.Confidence,
		})
	}
	return out
}

func printSummary(rep *pipeline.Report, runDir string) {
	// LipGloss signature purple/pink palette
	var (
		headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
		labelColor   = lipgloss.Color("#BD93F9") // Purple
		numberColor  = lipgloss.Color("#FF79C6") // Pink
		borderColor  = lipgloss.Color("#6272A4") // Muted purple
		summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
		riskColor    = lipgloss.Color("#FF5555") // Red
		okColor      = lipgloss.Color("#50FA7B") // Green
	)

	const (
		tierWidth  = 8
		labelWidth = 26
		confWidth  = 12
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	mutedStyle := lipgloss.NewStyle().Foreground(borderColor).Italic(true)

	statusStyle := lipgloss.NewStyle().Foreground(okColor).Bold(true)
	switch rep.Status {
	case pipeline.StatusFailed:
		statusStyle = statusStyle.Foreground(riskColor)
	case pipeline.StatusDegraded:
		statusStyle = statusStyle.Foreground(numberColor)
	}

	fmt.Println()
	fmt.Printf("%s %s\n",
		headerStyle.Render("Run "+rep.RunID),
		statusStyle.Render(rep.Status))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("Novel %s from %s", rep.NovelID, rep.Source)))
	fmt.Println()

	labels := append(labelsFor("genre", rep.Genres), labelsFor("tag", rep.Tags)...)
	if len(labels) == 0 {
		fmt.Println(mutedStyle.Render("No genres or tags resolved"))
	} else {
		headers := []string{
			headerStyle.Width(tierWidth).Render("TIER"),
			headerStyle.Width(labelWidth).Render("LABEL"),
			headerStyle.Width(confWidth).Render("CONFIDENCE"),
		}
		fmt.Println(strings.Join(headers, borderStyle.Render("│")))

		separatorParts := []string{
			strings.Repeat("─", tierWidth),
			strings.Repeat("─", labelWidth),
			strings.Repeat("─", confWidth),
		}
		fmt.Println(borderStyle.Render(strings.Join(separatorParts, "┼")))

		tierStyle := lipgloss.NewStyle().
			Foreground(numberColor).
			Padding(0, 1).
			Width(tierWidth)

		labelStyle := lipgloss.NewStyle().
			Foreground(labelColor).
			Padding(0, 1).
			Width(labelWidth)

		confStyle := lipgloss.NewStyle().
			Foreground(numberColor).
			Padding(0, 1).
			Width(confWidth).
			Align(lipgloss.Right)

		for _, l := range labels {
			cells := []string{
				tierStyle.Render(l.Tier),
				labelStyle.Render(l.DisplayName),
				confStyle.Render(fmt.Sprintf("%.2f", l.Confidence)),
			}
			fmt.Println(strings.Join(cells, borderStyle.Render("│")))
		}
	}
	fmt.Println()

	if rep.Salience != nil && len(rep.Salience.Characters) > 0 {
		top := rep.Salience.Characters
		if len(top) > 5 {
			top = top[:5]
		}
		parts := make([]string, 0, len(top))
		for _, c := range top {
			parts = append(parts, fmt.Sprintf("%s %.2f", c.Name, c.SalienceScore))
		}
		fmt.Println(lipgloss.NewStyle().Foreground(labelColor).
			Render("Top characters: " + strings.Join(parts, ", ")))
	}

	fmt.Println(mutedStyle.Render("Artifacts: " + runDir))
	fmt.Println()

	tail := rep.Logs
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, line := range tail {
		style := mutedStyle
		if line.Level == "RISK" {
			style = lipgloss.NewStyle().Foreground(riskColor)
		}
		text := fmt.Sprintf("%s %s %s %s", line.Time, line.Level, line.Stage, line.Message)
		if line.Detail != "" {
			text += " (" + line.Detail + ")"
		}
		fmt.Println(style.Render(text))
	}
	fmt.Println()

	summaryStyle := lipgloss.NewStyle().
		Foreground(summaryColor).
		Italic(true)

	summary := fmt.Sprintf("Total: %d chapters, %d characters, %d keywords, %d risks",
		rep.Chapters, rep.Characters, rep.KeywordsHit, rep.Risks)
	fmt.Println(summaryStyle.Render(summary))
}
