package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/internal/synth"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCSV stores a synthetic table in the nine-column input format.
func writeCSV(t *testing.T, rows int) string {
	t.Helper()
	tbl := synth.Pima(synth.PimaConfig{Rows: rows, Seed: 3, ZeroRate: 0.1})
	var sb strings.Builder
	sb.WriteString("Pregnancies,Glucose,BloodPressure,SkinThickness,Insulin,BMI,DiabetesPedigreeFunction,Age,Outcome\n")
	for i := 0; i < tbl.Rows(); i++ {
		for j := range tbl.Columns {
			fmt.Fprintf(&sb, "%g,", tbl.X.At(i, j))
		}
		fmt.Fprintf(&sb, "%g\n", tbl.Labels[i].Float())
	}
	path := filepath.Join(t.TempDir(), "pima.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	data := writeCSV(t, 150)
	dir := t.TempDir()
	out := filepath.Join(dir, "report.json")
	plots := filepath.Join(dir, "plots")

	_, _, err := execute("run", data,
		"--log-level", "warn",
		"--folds", "3", "--repeats", "1", "--trees", "10", "--jobs", "2",
		"--families", "random_forest,mlp",
		"--format", "json", "-o", out, "--plots", plots,
	)
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep struct {
		Rows      int    `json:"rows"`
		TrainSize int    `json:"train_size"`
		TestSize  int    `json:"test_size"`
		Best      string `json:"best"`
		Families  []struct {
			Family string `json:"family"`
		} `json:"families"`
	}
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, 150, rep.Rows)
	assert.Equal(t, 105, rep.TrainSize)
	assert.Equal(t, 45, rep.TestSize)
	require.Len(t, rep.Families, 2)
	assert.Contains(t, []string{"random_forest", "mlp"}, rep.Best)

	assert.FileExists(t, filepath.Join(plots, "roc.png"))
	assert.FileExists(t, filepath.Join(plots, "tuning_random_forest.png"))
	assert.FileExists(t, filepath.Join(plots, "tuning_mlp.png"))
}

func TestDescribeCommand(t *testing.T) {
	data := writeCSV(t, 60)
	stdout, _, err := execute("describe", data)
	require.NoError(t, err)
	assert.Contains(t, stdout, "rows 60")
	for _, c := range dataset.Columns {
		assert.Contains(t, stdout, c)
	}
	assert.Contains(t, stdout, "complete rows")
}

func TestCommandErrors(t *testing.T) {
	data := writeCSV(t, 60)
	tests := []struct {
		name  string
		args  []string
		stage string
	}{
		{"missing file", []string{"describe", filepath.Join(t.TempDir(), "none.csv")}, "load"},
		{"bad fraction", []string{"run", data, "--train-fraction", "1.5"}, "config"},
		{"bad format", []string{"run", data, "--format", "xml"}, "config"},
		{"bad delimiter", []string{"describe", data, "--comma", ";;"}, "load"},
		{"unknown family", []string{"run", data, "--families", "knn"}, "config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(tt.args...)
			require.Error(t, err)
			var st *errors.StageError
			require.True(t, errors.As(err, &st))
			assert.Equal(t, tt.stage, st.Stage)
			assert.Contains(t, describeError(err), fmt.Sprintf("stage %q failed", tt.stage))
		})
	}

	_, _, err := execute("run")
	assert.Error(t, err)
}
