// Benchmark tool for replaying labeled interview data against Crewgate.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/interviews.csv -url http://localhost:8080 -template tpl-001
//
// This tool:
//   1. Reads interview records with recruiter verdict labels
//   2. Sends each candidate to Crewgate for evaluation
//   3. Compares Crewgate's recommendation with the recruiter's verdict
//   4. Calculates agreement, precision/recall on rejections, and a confusion matrix
//
// CSV format: a "candidate_id" column, an "expected" column holding the
// recruiter verdict (FIT, FIT_WITH_TRAINING or NOT_RECOMMENDED), and one
// column per question. Columns named "<qid>" hold integer levels; columns
// named "text_<qid>" hold free-text answers scored by the rubric.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// InterviewRecord is one labeled interview from the dataset.
type InterviewRecord struct {
	CandidateID string
	Expected    string // recruiter verdict: FIT, FIT_WITH_TRAINING, NOT_RECOMMENDED
	Answers     []Answer
}

// Answer mirrors the Crewgate API answer shape.
type Answer struct {
	QuestionID string `json:"questionId"`
	Level      *int   `json:"level,omitempty"`
	Text       string `json:"text,omitempty"`
}

// EvaluateRequest is the Crewgate API request format.
type EvaluateRequest struct {
	CandidateID string   `json:"candidateId"`
	TemplateID  string   `json:"templateId"`
	ProfileKey  string   `json:"profileKey,omitempty"`
	Answers     []Answer `json:"answers"`
}

// EvaluateResponse is the Crewgate API response format.
type EvaluateResponse struct {
	DecisionID     string  `json:"decisionId"`
	OverallScore   float64 `json:"overallScore"`
	Recommendation string  `json:"recommendation"`
	RiskLevel      string  `json:"riskLevel"`
}

// Metrics tracks benchmark results. Rejection (NOT_RECOMMENDED) is the
// positive class: missing an unfit candidate is the costly error.
type Metrics struct {
	TruePositives  int64 // unfit, engine said NOT_RECOMMENDED
	FalsePositives int64 // fit/trainable, engine said NOT_RECOMMENDED
	TrueNegatives  int64 // fit/trainable, engine agreed
	FalseNegatives int64 // unfit, engine let through

	ExactAgreement int64 // recommendation matched the verdict exactly

	TotalProcessed int64
	TotalUnfit     int64
	TotalFit       int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled interview CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Crewgate base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	templateID := flag.String("template", "", "Assessment template ID to evaluate against")
	profileKey := flag.String("profile", "", "Eligibility profile key (optional)")
	limit := flag.Int("limit", 10000, "Maximum interviews to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	unfitOnly := flag.Bool("unfit-only", false, "Only replay interviews labeled NOT_RECOMMENDED")
	verbose := flag.Bool("verbose", false, "Print each interview result")
	flag.Parse()

	if *csvPath == "" || *templateID == "" {
		fmt.Println("Usage: benchmark -csv /path/to/interviews.csv -template tpl-001 [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       CREWGATE BENCHMARK - Labeled Interview Replay           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("Crewgate URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Template:      %s\n", *templateID)
	fmt.Printf("Profile:       %s\n", *profileKey)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Println()

	// Check Crewgate is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Crewgate not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Crewgate is running:")
		fmt.Println("  cd crewgate && go run cmd/crewgate/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Crewgate is healthy")

	// Read interview data
	fmt.Printf("\nReading interview data from %s...\n", *csvPath)
	interviews, err := readInterviewCSV(*csvPath, *limit, *unfitOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d interviews\n", len(interviews))

	unfitCount := 0
	for _, iv := range interviews {
		if iv.Expected == "NOT_RECOMMENDED" {
			unfitCount++
		}
	}
	fmt.Printf("  - Unfit:  %d (%.2f%%)\n", unfitCount, 100*float64(unfitCount)/float64(len(interviews)))
	fmt.Printf("  - Fit:    %d (%.2f%%)\n", len(interviews)-unfitCount, 100*float64(len(interviews)-unfitCount)/float64(len(interviews)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(interviews, *baseURL, *tenantID, *templateID, *profileKey, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readInterviewCSV(path string, limit int, unfitOnly bool) ([]InterviewRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices. Everything that is not candidate_id or
	// expected is a question column.
	idCol, expectedCol := -1, -1
	type questionCol struct {
		idx    int
		qid    string
		isText bool
	}
	var questionCols []questionCol

	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		switch {
		case name == "candidate_id":
			idCol = i
		case name == "expected":
			expectedCol = i
		case strings.HasPrefix(name, "text_"):
			questionCols = append(questionCols, questionCol{idx: i, qid: strings.TrimPrefix(name, "text_"), isText: true})
		default:
			questionCols = append(questionCols, questionCol{idx: i, qid: name})
		}
	}
	if idCol < 0 || expectedCol < 0 {
		return nil, fmt.Errorf("CSV must have candidate_id and expected columns")
	}

	var interviews []InterviewRecord

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		expected := strings.ToUpper(strings.TrimSpace(record[expectedCol]))
		if unfitOnly && expected != "NOT_RECOMMENDED" {
			continue
		}

		iv := InterviewRecord{
			CandidateID: record[idCol],
			Expected:    expected,
		}
		for _, qc := range questionCols {
			raw := strings.TrimSpace(record[qc.idx])
			if raw == "" {
				continue
			}
			if qc.isText {
				iv.Answers = append(iv.Answers, Answer{QuestionID: qc.qid, Text: raw})
				continue
			}
			level, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			iv.Answers = append(iv.Answers, Answer{QuestionID: qc.qid, Level: &level})
		}

		if len(iv.Answers) == 0 {
			continue
		}
		interviews = append(interviews, iv)

		if limit > 0 && len(interviews) >= limit {
			break
		}
	}

	return interviews, nil
}

func runBenchmark(interviews []InterviewRecord, baseURL, tenantID, templateID, profileKey string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan InterviewRecord, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for iv := range work {
				start := time.Now()
				result, err := evaluateCandidate(client, baseURL, tenantID, templateID, profileKey, iv)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", iv.CandidateID, err)
					}
					continue
				}

				actual := iv.Expected == "NOT_RECOMMENDED"
				predicted := result.Recommendation == "NOT_RECOMMENDED"

				if actual {
					atomic.AddInt64(&metrics.TotalUnfit, 1)
				} else {
					atomic.AddInt64(&metrics.TotalFit, 1)
				}

				if result.Recommendation == iv.Expected {
					atomic.AddInt64(&metrics.ExactAgreement, 1)
				}

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-14s | Verdict: %-18s | Crewgate: %-18s | Score: %6.2f | Risk: %s\n",
						status,
						iv.CandidateID,
						iv.Expected,
						result.Recommendation,
						result.OverallScore,
						result.RiskLevel,
					)
				}
			}
		}()
	}

	for _, iv := range interviews {
		work <- iv
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateCandidate(client *http.Client, baseURL, tenantID, templateID, profileKey string, iv InterviewRecord) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		CandidateID: iv.CandidateID,
		TemplateID:  templateID,
		ProfileKey:  profileKey,
		Answers:     iv.Answers,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Unfit:      %d\n", m.TotalUnfit)
	fmt.Printf("   Total Fit:        %d\n", m.TotalFit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX (rejection detection)\n")
	fmt.Println("                          Predicted")
	fmt.Println("                    REJECT      ACCEPT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("  Actual   U  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           F  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	agreement := float64(0)
	if total > 0 {
		agreement = float64(m.ExactAgreement) / float64(total)
	}

	fmt.Printf("\n🎯 AGREEMENT METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of rejections, how many the recruiter also rejected)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of unfit candidates, how many we rejected)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Agreement:  %.4f  (exact three-way recommendation match)\n", agreement)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalUnfit > 0 {
		missRate := float64(m.FalseNegatives) / float64(m.TotalUnfit) * 100
		fmt.Printf("   Unfit Rejected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalUnfit, 100-missRate)
		fmt.Printf("   Unfit Let Through: %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalUnfit, missRate)
	}
	if m.TotalFit > 0 {
		falseRejectRate := float64(m.FalsePositives) / float64(m.TotalFit) * 100
		fmt.Printf("   False Rejections:  %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalFit, falseRejectRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f eval/sec\n", tps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most unfit candidates")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but some unfit candidates slip through")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - many unfit candidates slip through")
	} else {
		fmt.Println("   ❌ Poor recall - most unfit candidates are let through!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - rejections are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many candidates rejected unnecessarily")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false rejections")
	}

	fmt.Println()
}
