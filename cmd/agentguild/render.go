package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	roleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	statusColors = map[string]lipgloss.Color{
		"running":   "2",
		"completed": "2",
		"starting":  "3",
		"stopping":  "3",
		"pending":   "3",
		"crashed":   "1",
		"failed":    "1",
		"cancelled": "8",
		"stopped":   "8",
	}
)

func statusText(s string) string {
	if c, ok := statusColors[s]; ok {
		return lipgloss.NewStyle().Foreground(c).Render(s)
	}
	return s
}

func timeText(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(p.w, t.Render())
	return err
}

func (p *printer) note(msg string) {
	if !p.json {
		fmt.Fprintln(p.w, dimStyle.Render(msg))
	}
}

func (p *printer) projects(ps []*agentguildv1.Project) error {
	if p.json {
		return p.writeJSON(ps)
	}
	rows := make([][]string, 0, len(ps))
	for _, pr := range ps {
		rows = append(rows, []string{pr.ID, pr.Name, pr.Description, timeText(&pr.CreatedAt)})
	}
	return p.table([]string{"ID", "NAME", "DESCRIPTION", "CREATED"}, rows)
}

func (p *printer) agents(as []*agentguildv1.Agent) error {
	if p.json {
		return p.writeJSON(as)
	}
	rows := make([][]string, 0, len(as))
	for _, a := range as {
		role := "-"
		if a.MultiAgent != nil && a.MultiAgent.Enabled {
			role = a.MultiAgent.Mode + "@" + a.MultiAgent.Group
		}
		port := "-"
		if a.Port > 0 {
			port = strconv.Itoa(int(a.Port))
		}
		rows = append(rows, []string{a.ID, a.Name, statusText(a.Status), a.Provider + "/" + a.Model, role, port, a.LastError})
	}
	return p.table([]string{"ID", "NAME", "STATUS", "MODEL", "ROLE", "PORT", "LAST ERROR"}, rows)
}

func (p *printer) tasks(ts []*agentguildv1.Task) error {
	if p.json {
		return p.writeJSON(ts)
	}
	rows := make([][]string, 0, len(ts))
	for _, t := range ts {
		schedule := t.Type
		if t.Recurrence != "" {
			schedule += " " + t.Recurrence
		}
		rows = append(rows, []string{t.ID, t.AgentID, t.Title, statusText(t.Status), schedule, strconv.Itoa(int(t.Priority)), timeText(t.NextRun), strconv.Itoa(int(t.RunCount))})
	}
	return p.table([]string{"ID", "AGENT", "TITLE", "STATUS", "SCHEDULE", "PRIO", "NEXT RUN", "RUNS"}, rows)
}

func (p *printer) task(t *agentguildv1.Task) error {
	if p.json {
		return p.writeJSON(t)
	}
	if err := p.tasks([]*agentguildv1.Task{t}); err != nil {
		return err
	}
	if t.DelegatedBy != "" {
		fmt.Fprintf(p.w, "delegated by %s\n", t.DelegatedBy)
	}
	if t.Result != "" {
		fmt.Fprintf(p.w, "%s\n%s\n", roleStyle.Render("result"), t.Result)
	}
	if t.Error != "" {
		fmt.Fprintf(p.w, "%s\n%s\n", statusText("failed"), t.Error)
	}
	return nil
}

func (p *printer) steps(steps []*agentguildv1.Step) error {
	if p.json {
		return p.writeJSON(steps)
	}
	for _, st := range steps {
		label := st.Role
		if st.ToolName != "" {
			label += " " + st.ToolName
		}
		fmt.Fprintf(p.w, "%s %s %s\n%s\n\n",
			dimStyle.Render(fmt.Sprintf("#%d", st.Seq)),
			roleStyle.Render(label),
			dimStyle.Render(timeText(&st.CreatedAt)),
			strings.TrimRight(st.Content, "\n"))
	}
	return nil
}

func (p *printer) result(r *agentguildv1.DelegationResult) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(r)
	}
	fmt.Fprintf(p.w, "%s %s %q from %s (task %s)\n", timeText(&r.CompletedAt), statusText(r.Status), r.Title, r.WorkerID, r.TaskID)
	switch {
	case r.Error != "":
		fmt.Fprintf(p.w, "  %s\n", r.Error)
	case r.Result != "":
		fmt.Fprintf(p.w, "  %s\n", strings.ReplaceAll(r.Result, "\n", "\n  "))
	}
	return nil
}

func (p *printer) event(e *agentguildv1.Event) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(e)
	}
	var data string
	if len(e.Data) > 0 {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		data = string(b)
	}
	fmt.Fprintf(p.w, "%s %s %-22s agent=%s task=%s %s\n",
		dimStyle.Render(strconv.FormatUint(e.Seq, 10)),
		timeText(&e.Timestamp),
		e.Type,
		orDash(e.AgentID),
		orDash(e.TaskID),
		data)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
