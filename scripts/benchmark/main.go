// Command benchmark measures a running siteprobe API against a fixed set of
// targets and writes a JSON report.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	apiURL = flag.String("api-url", "http://localhost:8080", "siteprobe API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Runs per target")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Targets cover a static page, a CMS site, a JS-heavy site and a channel.
var targets = []struct {
	Label string
	Kind  string
	Shape string
	URL   string
}{
	{"Static", "website", "business", "https://example.com"},
	{"Docs", "website", "content", "https://go.dev/doc/effective_go"},
	{"CMS", "website", "technology", "https://wordpress.org/news/"},
	{"SPA", "website", "website", "https://github.com/go-rod/rod"},
	{"Channel", "channel", "channel", "@GoogleDevelopers"},
}

type scrapeBody struct {
	Target string `json:"target"`
	Shape  string `json:"shape"`
}

// scrapeResult mirrors the fields of the API result the report needs.
type scrapeResult struct {
	Success         bool           `json:"success"`
	ErrorKind       *string        `json:"error_kind"`
	Error           string         `json:"error"`
	AttemptsUsed    int            `json:"attempts_used"`
	DurationSeconds float64        `json:"duration_seconds"`
	ConfidenceScore float64        `json:"confidence_score"`
	Data            map[string]any `json:"data"`
}

type runResult struct {
	Run        int     `json:"run"`
	HTTPStatus int     `json:"http_status"`
	LatencyMs  int64   `json:"latency_ms"`
	ServerMs   int64   `json:"server_ms"`
	Attempts   int     `json:"attempts"`
	Confidence float64 `json:"confidence"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

type targetAverages struct {
	LatencyMs  float64 `json:"latency_ms"`
	Attempts   float64 `json:"attempts"`
	Confidence float64 `json:"confidence"`
}

type targetResult struct {
	Target   string          `json:"target"`
	Label    string          `json:"label"`
	Kind     string          `json:"kind"`
	Shape    string          `json:"shape"`
	Runs     []runResult     `json:"runs"`
	Averages *targetAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	RunsPerTarget int            `json:"runs_per_target"`
	Results       []targetResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== siteprobe benchmark ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Runs/target: %d\n", *runs)
	fmt.Printf("Output:      %s\n\n", *output)

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Start it first with: siteprobe serve\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerTarget: *runs,
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	for _, t := range targets {
		fmt.Printf("Benchmarking [%s] %s (%s) ...\n", t.Label, t.URL, t.Shape)
		tr := targetResult{Target: t.URL, Label: t.Label, Kind: t.Kind, Shape: t.Shape}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := scrapeOnce(client, t.Kind, scrapeBody{Target: t.URL, Shape: t.Shape}, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d attempt(s)  confidence %.2f\n", rr.LatencyMs, rr.Attempts, rr.Confidence)
			} else {
				fmt.Printf("FAILED [%s] %s\n", rr.ErrorKind, rr.Error)
			}
			tr.Runs = append(tr.Runs, rr)
		}

		tr.Averages = computeAverages(tr.Runs)
		report.Results = append(report.Results, tr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func scrapeOnce(client *http.Client, kind string, body scrapeBody, run int) runResult {
	rr := runResult{Run: run}

	payload, err := json.Marshal(body)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scrape/"+kind, bytes.NewReader(payload))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.LatencyMs = time.Since(start).Milliseconds()
	rr.HTTPStatus = resp.StatusCode

	var sr scrapeResult
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = sr.Success
	rr.ServerMs = int64(sr.DurationSeconds * 1000)
	rr.Attempts = sr.AttemptsUsed
	rr.Confidence = sr.ConfidenceScore
	rr.Error = sr.Error
	if sr.ErrorKind != nil {
		rr.ErrorKind = *sr.ErrorKind
	}
	return rr
}

func computeAverages(runs []runResult) *targetAverages {
	var ok int
	var avg targetAverages
	for _, r := range runs {
		if !r.Success {
			continue
		}
		ok++
		avg.LatencyMs += float64(r.LatencyMs)
		avg.Attempts += float64(r.Attempts)
		avg.Confidence += r.Confidence
	}
	if ok == 0 {
		return nil
	}

	n := float64(ok)
	avg.LatencyMs /= n
	avg.Attempts /= n
	avg.Confidence /= n
	return &avg
}

func printTable(results []targetResult) {
	fmt.Println(strings.Repeat("─", 90))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Target\tShape\tAvg Latency\tAvg Attempts\tConfidence\tFailures\n")
	fmt.Fprintf(w, "──────\t─────\t───────────\t────────────\t──────────\t────────\n")

	for _, r := range results {
		failures := failureKinds(r.Runs)
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\tFAILED\t-\t-\t%s\n", truncate(r.Target, 40), r.Shape, failures)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%.1f\t%.2f\t%s\n",
			truncate(r.Target, 40),
			r.Shape,
			int64(r.Averages.LatencyMs),
			r.Averages.Attempts,
			r.Averages.Confidence,
			failures,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 90))
}

// failureKinds summarises failed runs as "blocked×2, transient×1".
func failureKinds(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if r.Success {
			continue
		}
		kind := r.ErrorKind
		if kind == "" {
			kind = "request"
		}
		counts[kind]++
	}
	if len(counts) == 0 {
		return "-"
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s×%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
