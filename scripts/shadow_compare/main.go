package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// target is one request replayed against both deployments.
type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Body     string `json:"body,omitempty"`
	Critical bool   `json:"critical"`
}

type targetFile struct {
	Targets []target `json:"targets"`
	// Ignore lists keys whose values differ by construction (ids, timestamps).
	Ignore []string `json:"ignore"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

type options struct {
	goBase      string
	legacyBase  string
	targetsPath string
	timeout     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "shadow-compare",
		Short:         "Replay result and inquiry requests against the legacy site and the Go API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.goBase, "go-base", "http://localhost:8080/api", "Go API base URL including the API prefix")
	cmd.Flags().StringVar(&opts.legacyBase, "legacy-base", "http://localhost:3000/api", "Legacy site API base URL")
	cmd.Flags().StringVar(&opts.targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "HTTP client timeout")
	return cmd
}

func run(opts options, out io.Writer) error {
	file, err := loadTargets(opts.targetsPath)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}
	ignore := make(map[string]struct{}, len(file.Ignore))
	for _, key := range file.Ignore {
		ignore[key] = struct{}{}
	}

	client := &http.Client{Timeout: opts.timeout}
	comparisons := make([]comparison, 0, len(file.Targets))
	var breaking, optionalDiff int
	for _, t := range file.Targets {
		comp := compareTarget(client, opts.goBase, opts.legacyBase, t, ignore)
		if comp.Error != nil || !comp.StatusMatch || !comp.BodyMatch {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(out, comparisons)
	fmt.Fprintf(out, "Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		return fmt.Errorf("%d critical targets differ", breaking)
	}
	return nil
}

func loadTargets(path string) (*targetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return &file, nil
}

func compareTarget(client *http.Client, goBase, legacyBase string, tgt target, ignore map[string]struct{}) comparison {
	comp := comparison{Target: tgt}
	goStatus, goBody, goDur, goErr := performRequest(client, goBase, tgt)
	legacyStatus, legacyBody, legacyDur, legacyErr := performRequest(client, legacyBase, tgt)
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus
	comp.BodyMatch = bodiesEqual(goBody, legacyBody, goStatus >= http.StatusBadRequest, ignore)
	return comp
}

func performRequest(client *http.Client, base string, tgt target) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if tgt.Body != "" {
		body = strings.NewReader(tgt.Body)
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return 0, nil, 0, err
	}
	if tgt.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, payload, time.Since(start), nil
}

// bodiesEqual compares the legacy payload with the data (or, for errors, the message)
// carried by the Go response envelope.
func bodiesEqual(goBody, legacyBody []byte, isError bool, ignore map[string]struct{}) bool {
	if bytes.Equal(bytes.TrimSpace(goBody), bytes.TrimSpace(legacyBody)) {
		return true
	}

	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(goBody, &envelope); err != nil {
		return false
	}

	var legacy interface{}
	if err := json.Unmarshal(legacyBody, &legacy); err != nil {
		return false
	}

	if isError {
		legacyMap, ok := legacy.(map[string]interface{})
		if !ok {
			return false
		}
		msg, _ := legacyMap["message"].(string)
		return msg == envelope.Message
	}

	var goData interface{}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &goData); err != nil {
			return false
		}
	}
	goData = normalize(goData, ignore)
	legacy = normalize(legacy, ignore)
	return reflect.DeepEqual(goData, legacy)
}

func normalize(v interface{}, ignore map[string]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if _, skip := ignore[k]; skip {
				continue
			}
			out[k] = normalize(inner, ignore)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalize(inner, ignore)
		}
		return out
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	}
	return v
}

func printReport(out io.Writer, results []comparison) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Result", "Target", "Go", "Legacy", "Body", "Critical"})
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		table.Append([]string{
			status,
			res.Target.Method + " " + res.Target.Path,
			fmt.Sprintf("%d (%s)", res.GoStatus, res.DurationGo.Round(time.Millisecond)),
			fmt.Sprintf("%d (%s)", res.LegacyStatus, res.DurationLegacy.Round(time.Millisecond)),
			strconv.FormatBool(res.BodyMatch),
			strconv.FormatBool(res.Target.Critical),
		})
	}
	table.Render()

	for _, res := range results {
		if res.Error != nil {
			color.New(color.FgRed).Fprintf(out, "%s %s: %v\n", res.Target.Method, res.Target.Path, res.Error)
		}
	}
}
