package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

type htmlReportData struct {
	GeneratedAt  string
	Report       Report
	Distribution []distributionRow
}

type distributionRow struct {
	Percentile float64
	ValueMs    float64
	Count      int64
}

// GenerateHTMLReport writes a standalone HTML page with the run summary and,
// when rec is non-nil, its cumulative latency distribution.
func GenerateHTMLReport(w io.Writer, r Report, rec *metrics.Recorder) error {
	data := htmlReportData{
		GeneratedAt:  time.Now().Format(time.RFC3339),
		Report:       r,
		Distribution: distributionRows(rec),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func distributionRows(rec *metrics.Recorder) []distributionRow {
	if rec == nil || rec.TotalCount() == 0 {
		return nil
	}
	brackets := rec.Distribution()
	rows := make([]distributionRow, 0, len(brackets))
	for _, b := range brackets {
		rows = append(rows, distributionRow{
			Percentile: b.Quantile,
			ValueMs:    float64(b.ValueAt) / float64(time.Millisecond),
			Count:      b.Count,
		})
	}
	return rows
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Load Run {{.Report.RunID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1100px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            padding: 30px 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 16px;
            margin-bottom: 32px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 16px;
            border-left: 4px solid #667eea;
        }
        .card.error { border-left-color: #ef4444; }
        .card .value { font-size: 1.6rem; font-weight: bold; }
        .note { background: #fef3c7; padding: 12px; border-radius: 6px; margin-bottom: 24px; }
        table { width: 100%; border-collapse: collapse; margin-bottom: 32px; }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #e5e7eb; }
        th { background: #f8f9fa; font-size: 0.85rem; text-transform: uppercase; }
        .badge-success { color: #065f46; font-weight: 600; }
        .badge-error { color: #991b1b; font-weight: 600; }
    </style>
</head>
<body>
<div class="container">
    <h1>Load Run Report</h1>
    <p>Run {{.Report.RunID}} against {{.Report.Run.Target}} ({{.Report.Run.Mode}}), generated {{.GeneratedAt}}</p>

    <div class="grid">
        <div class="card"><div>Submitted</div><div class="value">{{.Report.Counts.Submitted}}</div></div>
        <div class="card"><div>Started</div><div class="value">{{.Report.Counts.Started}}</div></div>
        <div class="card"><div>Latencies recorded</div><div class="value">{{.Report.Counts.Completed}}</div>
            <div>{{formatPercent .Report.Counts.Completed .Report.Counts.Submitted}}% of submitted</div></div>
        <div class="card error"><div>Failed</div><div class="value">{{.Report.Counts.Failed}}</div></div>
        <div class="card error"><div>Abandoned</div><div class="value">{{.Report.Counts.Abandoned}}</div></div>
        <div class="card"><div>Runtime</div><div class="value">{{.Report.Counts.WallClock}}</div></div>
    </div>

    {{if gt .Report.Counts.Unrecorded 0}}
    <div class="note">{{.Report.Counts.Unrecorded}} submitted requests have no recorded latency. Percentiles exclude them and are biased toward faster requests.</div>
    {{end}}

    <h2>Latency (ms)</h2>
    <table>
        <tr><th>Min</th><th>Mean</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>P99.9</th><th>Max</th></tr>
        <tr>
            <td>{{formatFloat .Report.Latency.MinMs}}</td>
            <td>{{formatFloat .Report.Latency.MeanMs}}</td>
            <td>{{formatFloat .Report.Latency.P50Ms}}</td>
            <td>{{formatFloat .Report.Latency.P90Ms}}</td>
            <td>{{formatFloat .Report.Latency.P95Ms}}</td>
            <td>{{formatFloat .Report.Latency.P99Ms}}</td>
            <td>{{formatFloat .Report.Latency.P999Ms}}</td>
            <td>{{formatFloat .Report.Latency.MaxMs}}</td>
        </tr>
    </table>

    {{if .Report.Failures}}
    <h2>Failures</h2>
    <table>
        <tr><th>Kind</th><th>Count</th></tr>
        {{range .Report.Failures}}<tr><td>{{.Kind}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{with .Report.Thresholds}}
    <h2>Thresholds ({{.Passed}}/{{.Total}} passed)</h2>
    <table>
        <tr><th>Threshold</th><th>Actual</th><th>Status</th></tr>
        {{range .Results}}<tr>
            <td>{{.Threshold}}</td>
            <td>{{formatFloat .Actual}}</td>
            <td>{{if .Pass}}<span class="badge-success">PASS</span>{{else}}<span class="badge-error">FAIL</span>{{end}}</td>
        </tr>
        {{end}}
    </table>
    {{end}}

    {{if .Distribution}}
    <h2>Distribution</h2>
    <table>
        <tr><th>Percentile</th><th>Value (ms)</th><th>Count</th></tr>
        {{range .Distribution}}<tr><td>{{formatFloat .Percentile}}</td><td>{{formatFloat .ValueMs}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
    {{end}}
</div>
</body>
</html>
`
