package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// scenarioStep: псевдо-шаг, под которым учитывается сценарий целиком.
const scenarioStep = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls   int64
	failed  int64
	codes   map[string]int64
	samples []time.Duration
}

func (s *stepStats) report() stepReport {
	return stepReport{
		Calls:     s.calls,
		Success:   s.calls - s.failed,
		Failed:    s.failed,
		ErrorRate: share(s.failed, s.calls),
		Codes:     maps.Clone(s.codes),
		LatencyMs: summarize(s.samples),
	}
}

// recorder копит результаты шагов из всех воркеров.
type recorder struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newRecorder() *recorder {
	return &recorder{steps: make(map[string]*stepStats)}
}

func (r *recorder) observe(step string, took time.Duration, code string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.steps[step]
	if s == nil {
		s = &stepStats{codes: make(map[string]int64)}
		r.steps[step] = s
	}
	s.calls++
	if !ok {
		s.failed++
	}
	s.codes[code]++
	s.samples = append(s.samples, took)
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Steps:           make(map[string]stepReport, len(r.steps)),
	}
	for name, s := range r.steps {
		out.Steps[name] = s.report()
	}
	if whole, ok := out.Steps[scenarioStep]; ok {
		out.TotalScenarios = whole.Calls
		out.SuccessScenarios = whole.Success
		out.FailedScenarios = whole.Failed
		out.ErrorRate = whole.ErrorRate
		out.ScenarioLatencyMs = whole.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

// summarize переводит выборку в миллисекунды и считает статистику.
func summarize(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	ms := make([]float64, len(samples))
	var sum float64
	for i, d := range samples {
		ms[i] = float64(d.Microseconds()) / 1000
		sum += ms[i]
	}
	slices.Sort(ms)

	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: quantile(ms, 0.50),
		P95: quantile(ms, 0.95),
		P99: quantile(ms, 0.99),
	}
}

// quantile интерполирует между соседними значениями отсортированной выборки.
func quantile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*(pos-float64(i))
}

func share(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func printReport(out io.Writer, r report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, cfg.target(), r.TotalScenarios, r.SuccessScenarios, r.FailedScenarios, r.ErrorRate)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", r.DurationSeconds, r.RPS)
	l := r.ScenarioLatencyMs
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STEP\tCALLS\tOK\tFAILED\tP95_MS\tCODES")
	for _, name := range slices.Sorted(maps.Keys(r.Steps)) {
		if name == scenarioStep {
			continue
		}
		s := r.Steps[name]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\t%s\n",
			name, s.Calls, s.Success, s.Failed, s.LatencyMs.P95, formatCodes(s.Codes))
	}
	_ = tw.Flush()
}

func formatCodes(codes map[string]int64) string {
	parts := make([]string, 0, len(codes))
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		parts = append(parts, fmt.Sprintf("%s:%d", code, codes[code]))
	}
	return strings.Join(parts, ",")
}

// writeJSONReport пишет отчёт в файл; путь не может выходить за пределы рабочего каталога
// через "..".
func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if !filepath.IsAbs(clean) && !filepath.IsLocal(clean) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(clean, append(body, '\n'), 0o600)
}
