package export

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

// table is the model rendered by the templates below. Widths are computed
// from the widest cell of each column.
type table struct {
	Headers []string
	Rows    [][]string
	widths  []int
}

func newTable(headers ...string) *table {
	t := &table{Headers: headers, widths: make([]int, len(headers))}
	for i, h := range headers {
		t.widths[i] = utf8.RuneCountInString(h)
	}
	return t
}

func (t *table) add(cells ...string) {
	for i, c := range cells {
		if n := utf8.RuneCountInString(c); n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.Rows = append(t.Rows, cells)
}

func (t *table) separator() string {
	var b strings.Builder
	b.WriteString("+")
	for _, w := range t.widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteString("+")
	}
	return b.String()
}

func (t *table) formatRow(cells []string) string {
	var b strings.Builder
	b.WriteString("|")
	for i, c := range cells {
		fmt.Fprintf(&b, " %-*s |", t.widths[i], c)
	}
	return b.String()
}

const tableTemplate = `{{define "table"}}{{separator .}}
{{formatRow . .Headers}}
{{separator .}}
{{range .Rows}}{{formatRow $ .}}
{{end}}{{separator .}}
{{end}}`

const findingsTemplate = `{{if .Table.Rows}}{{template "table" .Table}}{{else}}No active findings.
{{end}}Total estimated monthly savings: USD {{.Total}}
`

const auditTemplate = `
Audit of {{.Result.ClientID}} / {{.Result.AccountID}}: {{.Result.Status}}
Started: {{.Result.StartedAt.Format "2006-01-02 15:04:05"}}  Finished: {{.Result.FinishedAt.Format "2006-01-02 15:04:05"}}
{{if .Result.Error}}Error: {{.Result.Error}}
{{end}}{{if .Sweep}}
=== Inventory ===
{{template "table" .Sweep}}{{end}}{{if .Rules.Rows}}
=== Rules ===
{{template "table" .Rules}}{{end}}
Findings created: {{.Result.FindingsCreated}}  resolved: {{.Result.FindingsResolved}}
Active estimated monthly savings: USD {{.Result.ActiveMonthlySavings.StringFixed 2}}
`

const sweepTemplate = `
Inventory sweep of {{.ClientID}} / {{.AccountID}}: {{.Observed}} observed, {{.Skipped}} skipped
{{template "table" .Table}}`

const listTemplate = `{{template "table" .}}`

type Reporter struct {
	writer io.Writer
	tmpl   *template.Template
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}

	funcMap := template.FuncMap{
		"separator": func(t *table) string { return t.separator() },
		"formatRow": func(t *table, cells []string) string { return t.formatRow(cells) },
	}
	tmpl := template.Must(template.New("report").Funcs(funcMap).Parse(tableTemplate))
	template.Must(tmpl.New("findings").Parse(findingsTemplate))
	template.Must(tmpl.New("audit").Parse(auditTemplate))
	template.Must(tmpl.New("sweep").Parse(sweepTemplate))
	template.Must(tmpl.New("list").Parse(listTemplate))

	return &Reporter{writer: writer, tmpl: tmpl}
}

func (r *Reporter) render(name string, data any) error {
	if err := r.tmpl.ExecuteTemplate(r.writer, name, data); err != nil {
		return fmt.Errorf("failed to render %s report: %w", name, err)
	}
	return nil
}

func (r *Reporter) Findings(findings []domain.Finding) error {
	t := newTable("ID", "TYPE", "RESOURCE", "SEVERITY", "SAVINGS", "DETECTED", "REOPENED", "MESSAGE")
	total := decimal.Zero
	for _, f := range findings {
		t.add(
			f.ID,
			f.FindingType,
			f.ResourceID,
			f.Severity.String(),
			f.EstimatedMonthlySavings.StringFixed(2),
			f.DetectedAt.Format("2006-01-02"),
			strconv.Itoa(f.ReopenCount),
			f.Message,
		)
		total = total.Add(f.EstimatedMonthlySavings)
	}

	return r.render("findings", struct {
		Table *table
		Total string
	}{Table: t, Total: total.StringFixed(2)})
}

// Finding prints a single finding, typically after a manual resolve.
func (r *Reporter) Finding(f domain.Finding) error {
	t := newTable("ID", "TYPE", "RESOURCE", "RESOLVED", "RESOLVED BY")
	t.add(f.ID, f.FindingType, f.ResourceID, strconv.FormatBool(f.Resolved), f.ResolvedBy)
	return r.render("list", t)
}

func (r *Reporter) Audit(result domain.AuditResult) error {
	rulesTable := newTable("RULE", "FINDING TYPES", "CREATED", "RESOLVED", "SKIPPED", "ERROR")
	for _, o := range result.Rules {
		rulesTable.add(
			o.Rule,
			strings.Join(o.FindingTypes, ","),
			strconv.Itoa(o.Created),
			strconv.Itoa(o.Resolved),
			strconv.Itoa(o.Skipped),
			o.Error,
		)
	}

	var sweepTable *table
	if result.Sweep != nil {
		sweepTable = sweepRows(*result.Sweep)
	}

	return r.render("audit", struct {
		Result domain.AuditResult
		Rules  *table
		Sweep  *table
	}{Result: result, Rules: rulesTable, Sweep: sweepTable})
}

func (r *Reporter) Sweep(result domain.SweepResult) error {
	return r.render("sweep", struct {
		domain.SweepResult
		Table *table
	}{SweepResult: result, Table: sweepRows(result)})
}

func (r *Reporter) Clients(clients []domain.Client) error {
	t := newTable("ID", "NAME", "ACCOUNT", "REGIONS", "REQUIRED TAGS")
	for _, c := range clients {
		t.add(c.ID, c.Name, c.Account.ID, strings.Join(c.Account.Regions, ","), strings.Join(c.RequiredTags, ","))
	}
	return r.render("list", t)
}

// Text writes a plain line, used for tokens and other scalar output.
func (r *Reporter) Text(s string) error {
	_, err := fmt.Fprintln(r.writer, s)
	return err
}

func sweepRows(result domain.SweepResult) *table {
	t := newTable("RESOURCE TYPE", "OBSERVED", "SKIPPED", "ERROR")
	for _, o := range result.Types {
		t.add(string(o.ResourceType), strconv.Itoa(o.Observed), strconv.Itoa(o.Skipped), o.Error)
	}
	return t
}
