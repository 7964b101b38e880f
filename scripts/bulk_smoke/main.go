// Command bulk_smoke submits a CSV payload to a running bulkops-api instance
// and polls the run until it reaches a terminal state. It is an operator
// smoke tool for staging environments, not part of the service binary.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type submitRequest struct {
	Payload       string `json:"payload"`
	TargetRole    string `json:"targetRole"`
	Justification string `json:"justification"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type submitResult struct {
	Run *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"run"`
	Async  bool `json:"async"`
	Report struct {
		Errors   []json.RawMessage `json:"errors"`
		Warnings []json.RawMessage `json:"warnings"`
	} `json:"report"`
}

type runStatus struct {
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progressPercent"`
	ProcessedItems  int     `json:"processedItems"`
	TotalItems      int     `json:"totalItems"`
	SuccessCount    int     `json:"successCount"`
	FailureCount    int     `json:"failureCount"`
	SkippedCount    int     `json:"skippedCount"`
}

func main() {
	var (
		base          string
		token         string
		csvPath       string
		targetRole    string
		justification string
		pollInterval  time.Duration
		timeout       time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL including prefix")
	flag.StringVar(&token, "token", os.Getenv("BULKOPS_TOKEN"), "Bearer token for an admin user")
	flag.StringVar(&csvPath, "csv", "", "Path to the CSV payload to submit")
	flag.StringVar(&targetRole, "role", "TEACHER", "Target role when the CSV omits a role column")
	flag.StringVar(&justification, "justification", "smoke test", "Justification recorded on the run")
	flag.DurationVar(&pollInterval, "poll", 2*time.Second, "Status poll interval")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall deadline")
	flag.Parse()

	if csvPath == "" {
		log.Fatal("missing -csv")
	}
	if token == "" {
		log.Fatal("missing -token (or BULKOPS_TOKEN)")
	}
	payload, err := os.ReadFile(csvPath)
	if err != nil {
		log.Fatalf("failed to read payload: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	result, err := submit(client, base, token, submitRequest{
		Payload:       string(payload),
		TargetRole:    targetRole,
		Justification: justification,
	})
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	if result.Run == nil {
		fmt.Printf("no run created: %d validation errors, %d warnings\n",
			len(result.Report.Errors), len(result.Report.Warnings))
		os.Exit(1)
	}

	fmt.Printf("run %s accepted (async=%t)\n", result.Run.ID, result.Async)
	deadline := time.Now().Add(timeout)
	for {
		status, err := fetchStatus(client, base, token, result.Run.ID)
		if err != nil {
			log.Fatalf("status poll failed: %v", err)
		}
		fmt.Printf("  %s %.1f%% (%d/%d) success=%d failed=%d skipped=%d\n",
			status.Status, status.ProgressPercent, status.ProcessedItems, status.TotalItems,
			status.SuccessCount, status.FailureCount, status.SkippedCount)
		if status.Status == "COMPLETED" || status.Status == "FAILED" || status.Status == "ROLLED_BACK" {
			if status.FailureCount > 0 {
				os.Exit(1)
			}
			return
		}
		if time.Now().After(deadline) {
			log.Fatalf("run %s still %s after %s", result.Run.ID, status.Status, timeout)
		}
		time.Sleep(pollInterval)
	}
}

func submit(client *http.Client, base, token string, req submitRequest) (*submitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data, status, err := call(client, http.MethodPost, base+"/bulk/role-assignments", token, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("submit returned %d: %s", status, strings.TrimSpace(string(data)))
	}
	var result submitResult
	if err := decodeEnvelope(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func fetchStatus(client *http.Client, base, token, runID string) (*runStatus, error) {
	data, status, err := call(client, http.MethodGet, base+"/bulk/role-assignments/"+runID+"/status", token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status returned %d: %s", status, strings.TrimSpace(string(data)))
	}
	var result runStatus
	if err := decodeEnvelope(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func call(client *http.Client, method, url, token string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func decodeEnvelope(data []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	return json.Unmarshal(env.Data, out)
}
