package benchmark

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
)

// RenderMarkdown formats a run and its attempts as a markdown report.
func RenderMarkdown(run *BenchmarkRun, attempts []*BenchmarkAttempt) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Benchmark report: %s\n\n", run.Label)
	fmt.Fprintf(&b, "- Model: %s (profile %s)\n", run.ProfileModelID, run.ProfileName)
	fmt.Fprintf(&b, "- Status: %s\n", run.Status)
	if run.DatasetLabel != "" {
		fmt.Fprintf(&b, "- Dataset: %s (%d questions", run.DatasetLabel, run.DatasetTotal)
		if run.DatasetFilter != "" {
			fmt.Fprintf(&b, ", %s", run.DatasetFilter)
		}
		b.WriteString(")\n")
	}
	if run.StartedAt != nil {
		fmt.Fprintf(&b, "- Started: %s\n", run.StartedAt.Format(time.RFC3339))
	}
	if run.CompletedAt != nil {
		fmt.Fprintf(&b, "- Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", run.Error)
	}
	b.WriteString("\n")

	if m := run.Metrics; m != nil {
		b.WriteString("## Scores\n\n")
		b.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Questions attempted | %d / %d |\n", m.Attempted, m.TotalQuestions)
		fmt.Fprintf(&b, "| Answer accuracy | %.1f%% (%d passed) |\n", m.AnswerAccuracy*100, m.AnswerPassed)
		fmt.Fprintf(&b, "| Topology accuracy | %.1f%% (%d passed) |\n", m.TopologyAccuracy*100, m.TopologyPassed)
		fmt.Fprintf(&b, "| Avg topology score | %.2f |\n", m.AvgTopologyScore)
		fmt.Fprintf(&b, "| Avg latency | %s |\n", m.AvgLatency.Round(time.Millisecond))
		fmt.Fprintf(&b, "| Tokens (prompt / completion) | %d / %d |\n", m.TotalPromptTokens, m.TotalCompletionTokens)
		fmt.Fprintf(&b, "| Structured-output fallbacks | %d |\n", m.FallbackCount)
		fmt.Fprintf(&b, "| Errored questions | %d |\n", m.Errored)
		b.WriteString("\n")

		if len(m.ByType) > 0 {
			b.WriteString("## By question type\n\n")
			b.WriteString("| Type | Passed | Total | Accuracy |\n|---|---|---|---|\n")
			types := make([]string, 0, len(m.ByType))
			for t := range m.ByType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				tm := m.ByType[t]
				fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% |\n", t, tm.Passed, tm.Total, tm.Accuracy*100)
			}
			b.WriteString("\n")
		}
	}

	if len(attempts) > 0 {
		b.WriteString("## Attempts\n\n")
		b.WriteString("| # | Question | Type | Answer | Topology | Latency | Error |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, a := range attempts {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s |\n",
				a.Position+1,
				a.QuestionID,
				a.QuestionType,
				passLabel(a.AnswerEval != nil && a.AnswerEval.Passed, a.AnswerEval == nil),
				topologyLabel(a),
				a.Latency.Round(time.Millisecond),
				strings.ReplaceAll(a.Error, "|", "\\|"),
			)
		}
	}

	return b.String()
}

func passLabel(passed, missing bool) string {
	switch {
	case missing:
		return "—"
	case passed:
		return "pass"
	default:
		return "fail"
	}
}

func topologyLabel(a *BenchmarkAttempt) string {
	if a.TopologyEval == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", a.TopologyEval.Score)
}

// WriteXLSX exports a run as an Excel workbook with a summary sheet and a
// per-attempt detail sheet.
func WriteXLSX(path string, run *BenchmarkRun, attempts []*BenchmarkAttempt) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	const detail = "Attempts"

	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "renaming summary sheet")
	}
	if _, err := f.NewSheet(detail); err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "creating attempts sheet")
	}

	summaryRows := [][]any{
		{"Run", run.Label},
		{"Run ID", run.ID},
		{"Profile", run.ProfileName},
		{"Model", run.ProfileModelID},
		{"Status", string(run.Status)},
		{"Dataset", run.DatasetLabel},
		{"Questions", len(run.QuestionIDs)},
	}
	if m := run.Metrics; m != nil {
		summaryRows = append(summaryRows,
			[]any{"Attempted", m.Attempted},
			[]any{"Answer accuracy", m.AnswerAccuracy},
			[]any{"Topology accuracy", m.TopologyAccuracy},
			[]any{"Avg topology score", m.AvgTopologyScore},
			[]any{"Avg latency (ms)", m.AvgLatency.Milliseconds()},
			[]any{"Prompt tokens", m.TotalPromptTokens},
			[]any{"Completion tokens", m.TotalCompletionTokens},
			[]any{"Fallbacks", m.FallbackCount},
			[]any{"Errored", m.Errored},
		)
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "addressing summary cell")
		}
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "writing summary row")
		}
	}

	header := []any{
		"Position", "Question ID", "Type", "Difficulty",
		"Answer passed", "Answer expected", "Answer received",
		"Topology score", "Topology expected", "Topology received",
		"Latency (ms)", "Prompt tokens", "Completion tokens", "Error",
	}
	if err := f.SetSheetRow(detail, "A1", &header); err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "writing attempts header")
	}
	for i, a := range attempts {
		row := []any{
			a.Position + 1, a.QuestionID, string(a.QuestionType), a.QuestionDifficulty,
			a.AnswerEval != nil && a.AnswerEval.Passed,
			evalExpected(a), evalReceived(a),
			topologyScore(a), topologyExpected(a), topologyReceived(a),
			a.Latency.Milliseconds(), a.PromptTokens, a.CompletionTokens, a.Error,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "addressing attempt cell")
		}
		if err := f.SetSheetRow(detail, cell, &row); err != nil {
			return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "writing attempt row")
		}
	}

	if err := f.SaveAs(path); err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeInternal, "saving workbook")
	}
	return nil
}

func evalExpected(a *BenchmarkAttempt) string {
	if a.AnswerEval == nil {
		return ""
	}
	return a.AnswerEval.Expected
}

func evalReceived(a *BenchmarkAttempt) string {
	if a.AnswerEval == nil {
		return ""
	}
	return a.AnswerEval.Received
}

func topologyScore(a *BenchmarkAttempt) any {
	if a.TopologyEval == nil {
		return ""
	}
	return a.TopologyEval.Score
}

func topologyExpected(a *BenchmarkAttempt) string {
	if a.TopologyEval == nil {
		return ""
	}
	return a.TopologyEval.Expected
}

func topologyReceived(a *BenchmarkAttempt) string {
	if a.TopologyEval == nil {
		return ""
	}
	return a.TopologyEval.Received
}
