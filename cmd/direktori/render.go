package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"direktori/internal/preflight"
	"direktori/internal/queue"
	"direktori/internal/workflow"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

// column is one table column. Numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

var (
	statusColumns   = []column{{title: "Status"}, {title: "Count", numeric: true}}
	resolvedColumns = []column{{title: "Resolved"}, {title: "Items", numeric: true}}
	outcomeColumns  = []column{{title: "Outcome"}, {title: "Items", numeric: true}}
	fieldColumns    = []column{{title: "Field"}, {title: "Value"}}
	checkColumns    = []column{{title: "Check"}, {title: "Result"}, {title: "Detail"}}
	listColumns     = []column{
		{title: "ID", numeric: true},
		{title: "IDSBR"},
		{title: "Status"},
		{title: "Assigned"},
		{title: "Attempts", numeric: true},
		{title: "Updated"},
		{title: "Error"},
	}
)

// renderTable draws rows in the rounded style. Short rows are padded.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		header = append(header, c.title)
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.numeric {
			cfg.Align = text.AlignRight
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range cells {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = cell
		}
		tw.AppendRow(cells)
	}
	return tw.Render() + "\n"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(enabled bool, color, value string) string {
	if !enabled {
		return value
	}
	return color + value + ansiReset
}

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(stats)+1)
	total := 0
	for _, status := range queue.AllStatuses() {
		count := stats[status]
		total += count
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})
	return rows
}

func buildQueueListRows(items []*queue.WorkItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.BusinessKey,
			string(item.Status),
			item.AssignedTo,
			strconv.Itoa(item.AttemptCount),
			formatTime(item.LastUpdated),
			truncateCell(item.Error, 48),
		})
	}
	return rows
}

func renderItem(w io.Writer, item *queue.WorkItem) {
	fmt.Fprintf(w, "ID:             %d\n", item.ID)
	fmt.Fprintf(w, "IDSBR:          %s\n", item.BusinessKey)
	fmt.Fprintf(w, "Status:         %s\n", item.Status)
	fmt.Fprintf(w, "Assigned to:    %s\n", valueOrDash(item.AssignedTo))
	fmt.Fprintf(w, "Attempts:       %d\n", item.AttemptCount)
	if item.FirstTakenAt != nil {
		fmt.Fprintf(w, "First taken:    %s\n", formatTime(*item.FirstTakenAt))
	} else {
		fmt.Fprintln(w, "First taken:    -")
	}
	fmt.Fprintf(w, "Last updated:   %s\n", formatTime(item.LastUpdated))
	fmt.Fprintf(w, "Error:          %s\n", valueOrDash(item.Error))

	p := item.Payload
	fields := queue.PayloadColumns
	values := p.Fields()
	var rows [][]string
	for i, column := range fields {
		if v := strings.TrimSpace(*values[i]); v != "" {
			rows = append(rows, []string{column, v})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, renderTable(fieldColumns, rows))
	}
}

func renderRunSummary(w io.Writer, summary workflow.RunSummary) {
	color := shouldColorize(w)
	state := colorize(color, ansiGreen, "queue drained")
	if summary.Interrupted {
		state = colorize(color, ansiYellow, "interrupted")
	}
	fmt.Fprintf(w, "Run %s: %s after %s\n", summary.RunID, state, summary.Duration.Round(time.Second))
	fmt.Fprintf(w, "Workers: %d  Processed: %d  Completed: %d\n", summary.Workers, summary.Processed, summary.Completed)

	rows := make([][]string, 0, len(summary.ByStatus))
	for _, status := range queue.AllStatuses() {
		if n := summary.ByStatus[status]; n > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(n)})
		}
	}
	if len(rows) > 0 {
		fmt.Fprint(w, renderTable(resolvedColumns, rows))
	}

	outcomes := make([]string, 0, len(summary.ByOutcome))
	for kind := range summary.ByOutcome {
		outcomes = append(outcomes, kind)
	}
	sort.Strings(outcomes)
	if len(outcomes) > 0 {
		rows = rows[:0]
		for _, kind := range outcomes {
			rows = append(rows, []string{kind, strconv.Itoa(summary.ByOutcome[kind])})
		}
		fmt.Fprint(w, renderTable(outcomeColumns, rows))
	}

	problems := summary.ClaimErrors + summary.ReconcileErrors + summary.SubmitterErrors
	if problems > 0 {
		fmt.Fprintln(w, colorize(color, ansiRed, fmt.Sprintf(
			"Errors: claim=%d reconcile=%d submitter=%d",
			summary.ClaimErrors, summary.ReconcileErrors, summary.SubmitterErrors,
		)))
	}
	if summary.StaleReclaimed > 0 {
		fmt.Fprintf(w, "Stale claims reclaimed: %d\n", summary.StaleReclaimed)
	}
}

func renderPreflight(w io.Writer, results []preflight.Result) {
	color := shouldColorize(w)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := colorize(color, ansiGreen, "ok")
		if !r.Passed {
			if r.Optional {
				state = colorize(color, ansiYellow, "warn")
			} else {
				state = colorize(color, ansiRed, "fail")
			}
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	fmt.Fprint(w, renderTable(checkColumns, rows))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncateCell(value string, n int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	if len([]rune(value)) <= n {
		return value
	}
	return queue.TruncateTo(value, n-1) + "…"
}
