package journal

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// RunReport summarizes one backtest run for an Org-mode notebook.
type RunReport struct {
	RunID   string
	Created time.Time
	Mode    string // mtm, ticks, walkforward
	Dataset string
	Symbol  string

	SlippageBp    float64
	CommissionPct float64
	FixedFee      float64

	Steps       int
	Windows     int
	Trades      int
	Wins        int
	Losses      int
	TotalPnL    float64
	AvgPnL      float64
	WinRate     float64
	AvgSlippage float64
	MaxDrawdown float64

	FinalCash     float64
	FinalPosition float64
	FinalMTM      float64

	Notes []string
}

var reportFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(RunReportTemplate))

// Render returns the Org block for the run.
func (r RunReport) Render() (string, error) {
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// WriteOrg renders the report to path.
func (r RunReport) WriteOrg(path string) error {
	s, err := r.Render()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

const RunReportTemplate = `
* BACKTEST: {{.Mode}} {{if .Symbol}}{{.Symbol}}{{else}}(symbol?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:MODE:        {{.Mode}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:STEPS:       {{.Steps}}
{{- if .Windows}}
:WINDOWS:     {{.Windows}}
{{- end}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:TOTAL_PNL:   {{printf "%.2f" .TotalPnL}}
:MAX_DD:      {{printf "%.2f" .MaxDrawdown}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Cost Model
| Parameter      | Value |
|----------------+-------|
| Slippage (bp)  | {{printf "%.2f" .SlippageBp}} |
| Commission %   | {{printf "%.4f" (mul100 .CommissionPct)}} |
| Fixed fee      | {{printf "%.2f" .FixedFee}} |

** Performance Summary
- Total P/L:        *{{printf "%.2f" .TotalPnL}}*
- Avg P/L:          *{{printf "%.2f" .AvgPnL}}*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*
- Avg Slippage:     *{{printf "%.6f" .AvgSlippage}}*
- Max Drawdown:     *{{printf "%.2f" .MaxDrawdown}}*

** Final Ledger
| Cash | Position | MTM |
|------+----------+-----|
| {{printf "%.2f" .FinalCash}} | {{.FinalPosition}} | {{printf "%.2f" .FinalMTM}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// FormatTradeOrg renders a trade as an Org heading with a PROPERTIES
// drawer.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s %s (%s)\n", t.Side, t.Symbol, t.Status, shortID(t.OrderID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ORDER_ID: %s\n", t.OrderID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QTY: %g\n", t.Qty)
	fmt.Fprintf(&b, ":FILLED_PRICE: %.2f\n", t.FilledPrice)
	fmt.Fprintf(&b, ":STATUS: %s\n", t.Status)
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	if !t.SignalTime.IsZero() {
		fmt.Fprintf(&b, ":SIGNAL_TIME: %s\n", t.SignalTime.UTC().Format(time.RFC3339))
	}
	b.WriteString(":END:\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
