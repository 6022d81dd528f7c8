package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ia319/nola/internal/queue"
)

// taskTable renders the listing used by "queue list": one row per task with
// the attempt counter shown against its budget.
func taskTable(tasks []*queue.Task) string {
	lt := newListTable("ID", "Status", "Priority", "Attempts", "Worker", "Created")
	lt.alignRight("Priority", "Attempts")
	for _, task := range tasks {
		worker := task.ClaimedBy
		if worker == "" {
			worker = "-"
		}
		lt.row(
			task.ID,
			string(task.Status),
			task.Priority,
			fmt.Sprintf("%d/%d", task.AttemptCount, task.MaxAttempts),
			worker,
			task.CreatedAt.Local().Format(time.RFC3339),
		)
	}
	return lt.render()
}

// statusTable renders per-status counts for "queue status" in the queue's
// canonical status order.
func statusTable(stats map[queue.Status]int) string {
	lt := newListTable("Status", "Count")
	lt.alignRight("Count")
	for _, status := range queue.AllStatuses() {
		if count, ok := stats[status]; ok {
			lt.row(string(status), count)
		}
	}
	return lt.render()
}

// listTable accumulates rows for a rounded go-pretty table. Columns named
// via alignRight are right aligned; everything else stays left.
type listTable struct {
	headers []string
	right   map[string]bool
	rows    []table.Row
}

func newListTable(headers ...string) *listTable {
	return &listTable{headers: headers, right: make(map[string]bool)}
}

func (t *listTable) alignRight(headers ...string) {
	for _, header := range headers {
		t.right[header] = true
	}
}

func (t *listTable) row(cells ...any) {
	r := make(table.Row, len(t.headers))
	for i := range r {
		if i < len(cells) {
			r[i] = cellText(cells[i])
		} else {
			r[i] = ""
		}
	}
	t.rows = append(t.rows, r)
}

func (t *listTable) render() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(t.headers))
	configs := make([]table.ColumnConfig, 0, len(t.headers))
	for i, name := range t.headers {
		header[i] = name
		align := text.AlignLeft
		if t.right[name] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, r := range t.rows {
		tw.AppendRow(r)
	}
	return tw.Render()
}

func cellText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
