package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// CategoryNamer resolves category IDs for display.
type CategoryNamer interface {
	ByID(id string) (model.Category, bool)
}

// RenderTable lays out rows under headers with the shared table styles.
func RenderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}

// RuleVersionTable renders rule versions, one per row.
func RuleVersionTable(versions []model.RuleVersion, names CategoryNamer) string {
	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		active := ""
		if v.IsActive {
			active = SuccessIcon
		}
		rows = append(rows, []string{
			shortID(v.ID),
			v.RuleType.String(),
			v.RuleIdentifier,
			strconv.Itoa(v.Version),
			categoryLabel(names, v.CategoryID),
			fmt.Sprintf("%.2f", v.Confidence),
			v.Source.String(),
			active,
		})
	}
	return RenderTable([]string{"ID", "TYPE", "IDENTIFIER", "VER", "CATEGORY", "CONF", "SOURCE", "ACTIVE"}, rows)
}

// RuleEventTable renders a rule version's audit trail.
func RuleEventTable(events []model.RuleEvent) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.Action,
			e.Actor,
			e.Reason,
		})
	}
	return RenderTable([]string{"WHEN", "ACTION", "ACTOR", "REASON"}, rows)
}

// OscillationTable renders open oscillations with their category path.
func OscillationTable(oscillations []model.CategoryOscillation, names CategoryNamer) string {
	rows := make([][]string, 0, len(oscillations))
	for _, o := range oscillations {
		path := make([]string, 0, len(o.Sequence))
		for _, c := range o.Sequence {
			path = append(path, categoryLabel(names, c.CategoryID))
		}
		rows = append(rows, []string{
			shortID(o.ID),
			o.TxID,
			strconv.Itoa(o.Count),
			strings.Join(path, " → "),
			o.DetectedAt.Local().Format(time.DateOnly),
		})
	}
	return RenderTable([]string{"ID", "TRANSACTION", "CHANGES", "PATH", "DETECTED"}, rows)
}

// CanaryBox summarizes a canary run.
func CanaryBox(r *model.CanaryTestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule version: %s\n", r.RuleVersionID)
	fmt.Fprintf(&b, "Sample:       %d labeled transactions\n", r.TestSetSize)
	fmt.Fprintf(&b, "Correct:      %d\n", r.CorrectCount)
	fmt.Fprintf(&b, "Incorrect:    %d\n", r.IncorrectCount)
	fmt.Fprintf(&b, "Accuracy:     %.1f%%\n", r.Accuracy*100)
	fmt.Fprintf(&b, "Precision:    %s\n", percent(r.Precision))
	fmt.Fprintf(&b, "Recall:       %s\n", percent(r.Recall))
	fmt.Fprintf(&b, "F1:           %s\n", percent(r.F1Score))

	verdict := FormatError("did not pass")
	if r.PassedThreshold {
		verdict = FormatSuccess("passed")
	}
	b.WriteString(verdict)

	return RenderBox(RuleIcon+" Canary Test", b.String())
}

// BatchSummaryBox renders the outcome of a categorization run.
func BatchSummaryBox(s engine.BatchSummary, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transactions:  %d\n", s.Total)
	fmt.Fprintf(&b, "Rules:         %d\n", s.Pass1)
	fmt.Fprintf(&b, "LLM:           %d\n", s.LLM)
	fmt.Fprintf(&b, "Corrected:     %d\n", s.Corrected)
	fmt.Fprintf(&b, "Needs review:  %d\n", s.NeedsReview)
	fmt.Fprintf(&b, "Failed:        %d\n", s.Failed)
	fmt.Fprintf(&b, "Time taken:    %s", elapsed.Round(time.Millisecond))
	return RenderBox(ChartIcon+" Categorization Complete", b.String())
}

// EffectivenessTable renders daily rule effectiveness rows in date order.
func EffectivenessTable(rows []model.RuleEffectiveness) string {
	sorted := append([]model.RuleEffectiveness(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MeasurementDate.Before(sorted[j].MeasurementDate)
	})

	out := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, []string{
			r.MeasurementDate.Format(time.DateOnly),
			strconv.Itoa(r.ApplicationsCount),
			strconv.Itoa(r.CorrectCount),
			strconv.Itoa(r.IncorrectCount),
			fmt.Sprintf("%.2f", r.AvgConfidence),
			percent(r.Precision),
		})
	}
	return RenderTable([]string{"DATE", "APPLIED", "CORRECT", "INCORRECT", "AVG CONF", "PRECISION"}, out)
}

func categoryLabel(names CategoryNamer, id string) string {
	if id == "" {
		return "-"
	}
	if names != nil {
		if c, ok := names.ByID(id); ok {
			return c.Slug
		}
	}
	return shortID(id)
}

func percent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *p*100)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
