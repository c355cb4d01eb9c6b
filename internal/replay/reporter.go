package replay

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"bnpl-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// Report file names written under the output directory.
const (
	SummaryFile   = "replay_summary.txt"
	DecisionsFile = "decisions.csv"
	JSONFile      = "replay_results.json"
)

// Reporter generates replay reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the per-row decision log and the JSON
// report.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateDecisionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results

	fmt.Fprintf(w, "REPLAY RESULTS SUMMARY\n")
	fmt.Fprintf(w, "======================\n\n")

	fmt.Fprintf(w, "Model Version: %s\n", orNone(res.ModelVersion))
	fmt.Fprintf(w, "Settings: threshold=%.2f min_fico=%d max_dti=%d\n",
		res.Settings.Threshold, res.Settings.MinFICO, res.Settings.MaxDTI)
	fmt.Fprintf(w, "Duration: %s\n\n", res.EndTime.Sub(res.StartTime).Round(time.Millisecond))

	fmt.Fprintf(w, "DECISIONS\n")
	fmt.Fprintf(w, "---------\n")
	fmt.Fprintf(w, "Rows: %d\n", res.Rows)
	fmt.Fprintf(w, "Evaluated: %d\n", res.Evaluated)
	fmt.Fprintf(w, "Approved: %d\n", res.Approved)
	fmt.Fprintf(w, "Rejected: %d\n", res.Rejected)
	fmt.Fprintf(w, "Approval Rate: %.2f%%\n", res.ApprovalRate*100)
	for _, reason := range sortedKeys(res.RejectionsByReason) {
		fmt.Fprintf(w, "  rejected for %s: %d\n", reason, res.RejectionsByReason[reason])
	}
	for _, code := range sortedKeys(res.Errors) {
		fmt.Fprintf(w, "  not evaluated (%s): %d\n", code, res.Errors[code])
	}

	fmt.Fprintf(w, "\nPORTFOLIO\n")
	fmt.Fprintf(w, "---------\n")
	fmt.Fprintf(w, "Approved Volume: $%.2f\n", res.ApprovedVolume)
	fmt.Fprintf(w, "Expected Profit: $%.2f\n", res.ExpectedProfit)
	limits := make([]int, 0, len(res.LimitDistribution))
	for l := range res.LimitDistribution {
		limits = append(limits, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(limits)))
	for _, l := range limits {
		fmt.Fprintf(w, "  limit $%d: %d\n", l, res.LimitDistribution[l])
	}

	fmt.Fprintf(w, "\nOUTCOMES\n")
	fmt.Fprintf(w, "--------\n")
	fmt.Fprintf(w, "Labeled Rows: %d\n", res.Labeled)
	fmt.Fprintf(w, "Default Rate (approved): %.2f%% of %d\n", res.ApprovedDefaultRate*100, res.ApprovedLabeled)
	fmt.Fprintf(w, "Default Rate (rejected): %.2f%% of %d\n", res.RejectedDefaultRate*100, res.RejectedLabeled)
	if res.AUC != nil {
		fmt.Fprintf(w, "ROC AUC: %.4f\n", *res.AUC)
	} else {
		fmt.Fprintf(w, "ROC AUC: n/a\n")
	}
}

// generateDecisionLog writes one CSV line per input row.
func (r *Reporter) generateDecisionLog() error {
	csvPath := filepath.Join(r.outputPath, DecisionsFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create decision log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"line", "loan_amnt", "fico_range_low", "dti", "grade", "model_probability",
		"probability_of_default", "decision", "reason", "recommended_limit",
		"expected_profit", "defaulted", "error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range r.results.Outcomes {
		if err := writer.Write(decisionRow(o)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write decision log: %w", err)
	}

	log.Info().Str("file", csvPath).Int("rows", len(r.results.Outcomes)).Msg("Decision log generated")
	return nil
}

func decisionRow(o Outcome) []string {
	label := ""
	if o.Label != nil {
		label = strconv.FormatBool(*o.Label)
	}
	if !o.OK() {
		row := make([]string, 13)
		row[0] = strconv.Itoa(o.Line)
		row[11] = label
		row[12] = o.Err.Error()
		return row
	}

	e := o.Evaluation
	return []string{
		strconv.Itoa(o.Line),
		numeric(e.Applicant, features.LoanAmount),
		numeric(e.Applicant, features.FICO),
		numeric(e.Applicant, features.DTI),
		e.Applicant.Grade,
		fmt.Sprintf("%.6f", e.ModelProbability),
		fmt.Sprintf("%.6f", e.ProbabilityOfDefault),
		string(e.Decision),
		string(e.Reason),
		strconv.Itoa(e.RecommendedLimit),
		fmt.Sprintf("%.2f", e.ExpectedProfit),
		label,
		"",
	}
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, JSONFile)

	report := map[string]interface{}{
		"summary":      r.results,
		"generated_at": time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to the console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.writeSummary(os.Stdout)
	fmt.Println()
}

func numeric(a features.Applicant, name string) string {
	v, ok := a.Numeric(name)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
