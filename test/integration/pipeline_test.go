package integration

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipeline_SimulateTrainScore drives the CLI end to end: simulate a day of
// normal traffic, train on it, then score a short log with one stress window.
func TestPipeline_SimulateTrainScore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectRoot, err := getProjectRoot()
	require.NoError(t, err)

	binaryPath := buildAnomrBinary(t, projectRoot)
	defer os.Remove(binaryPath)

	dir := t.TempDir()
	configFile := writeConfig(t, dir)
	trainLog := filepath.Join(dir, "train.log")
	liveLog := filepath.Join(dir, "live.log")

	runAnomr(t, binaryPath, "simulate", "--config", configFile,
		"--output", trainLog, "--windows", "288", "--seed", "7",
		"--start", "2025-10-04T00:00:00+07:00")
	runAnomr(t, binaryPath, "simulate", "--config", configFile,
		"--output", liveLog, "--windows", "6", "--seed", "8", "--stress", "3",
		"--start", "2025-10-05T00:00:00+07:00")

	runAnomr(t, binaryPath, "train", "--config", configFile, "--input", trainLog)
	for _, name := range []string{"scaler.json", "model.json"} {
		_, err := os.Stat(filepath.Join(dir, "model", name))
		assert.NoError(t, err, "artifact %s should exist", name)
	}

	anomalies := filepath.Join(dir, "anomalies.csv")
	runAnomr(t, binaryPath, "score", "--config", configFile, "--input", liveLog, "--output", anomalies)

	f, err := os.Open(anomalies)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2, "stress window should be flagged")
	assert.Equal(t, []string{"bucket_start", "anomaly_score", "is_anomaly", "severity"}, rows[0][:4])
	// worst bucket first
	assert.Equal(t, "2025-10-05T00:15:00.000+07:00", rows[1][0])
	assert.Equal(t, "true", rows[1][2])

	runs := readRunLog(t, filepath.Join(dir, "runs.jsonl"))
	stages := make([]string, 0, len(runs))
	for _, r := range runs {
		stages = append(stages, r["stage"].(string))
	}
	assert.Equal(t, []string{"train", "score"}, stages)
}

// TestPipeline_ParseThenQuery parses a simulated stress log into NDJSON and
// drills into the failed logins with the query command.
func TestPipeline_ParseThenQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectRoot, err := getProjectRoot()
	require.NoError(t, err)

	binaryPath := buildAnomrBinary(t, projectRoot)
	defer os.Remove(binaryPath)

	dir := t.TempDir()
	configFile := writeConfig(t, dir)
	logFile := filepath.Join(dir, "postgresql.log")
	events := filepath.Join(dir, "events.ndjson")
	rejects := filepath.Join(dir, "rejects.jsonl")

	runAnomr(t, binaryPath, "simulate", "--config", configFile,
		"--output", logFile, "--windows", "2", "--seed", "3", "--stress", "1",
		"--start", "2025-10-04T21:00:00+07:00")

	// one line the grammar cannot match
	lf, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = lf.WriteString("this is not a postgres log line\n")
	require.NoError(t, err)
	require.NoError(t, lf.Close())

	runAnomr(t, binaryPath, "parse", "--config", configFile,
		"--input", logFile, "--output", events, "--reject-file", rejects)

	rejected := readRunLog(t, rejects)
	require.Len(t, rejected, 1)
	assert.Equal(t, "no match", rejected[0]["reason"])

	fatal := filepath.Join(dir, "fatal.ndjson")
	runAnomr(t, binaryPath, "query", "--config", configFile,
		"--input", events, "--output", fatal, "--type", "FATAL")

	matched := readRunLog(t, fatal)
	require.NotEmpty(t, matched, "stress window should contain failed logins")
	for _, e := range matched {
		assert.Equal(t, "FATAL", e["event_type"])
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	configFile := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`version: "0.1"
artifacts:
  scaler_path: "%[1]s/model/scaler.json"
  model_path: "%[1]s/model/model.json"
logging:
  level: "info"
  console_level: "warn"
  run_log: "%[1]s/runs.jsonl"
`, dir)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func runAnomr(t *testing.T, binaryPath string, args ...string) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("anomr %s output: %s", strings.Join(args, " "), string(output))
	}
	require.NoError(t, err, "anomr %s failed", args[0])
}

// readRunLog decodes a JSON-lines file into generic maps.
func readRunLog(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func getProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up until go.mod is found
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func buildAnomrBinary(t *testing.T, projectRoot string) string {
	binaryPath := filepath.Join(t.TempDir(), "anomr_test")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/anomr")
	cmd.Dir = projectRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Build output: %s", string(output))
		require.NoError(t, err, "Failed to build anomr binary")
	}

	return binaryPath
}
