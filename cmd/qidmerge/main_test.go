package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openenergytransition/qidmerge/internal/mockwdqs"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := execute(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "qidmerge 0.3.0")
}

func TestConfig_PrintsOverrides(t *testing.T) {
	code, out, errOut := execute(t, "config", "--props", "P528,P712", "--lang", "es,en", "--batch-size", "10")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "P528, P712")
	assert.Contains(t, out, "es, en")
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "unknown flag", args: []string{"merge", "--nope"}, want: exitUsage},
		{name: "missing paths", args: []string{"merge"}, want: exitUsage},
		{name: "invalid property", args: []string{"config", "--props", "X1"}, want: exitUsage},
		{name: "zero batch", args: []string{"config", "--batch-size", "0"}, want: exitUsage},
		{name: "dataset without file", args: []string{"config", "--dataset", "colombia"}, want: exitUsage},
		{name: "missing input file", args: []string{"merge", "--input", "/nonexistent/in.csv", "--output", "/nonexistent/out.csv"}, want: exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := execute(t, tt.args...)
			assert.Equal(t, tt.want, code, errOut)
			assert.Contains(t, errOut, "error:")
		})
	}
}

func TestMerge_EndToEnd(t *testing.T) {
	mock := mockwdqs.New(mockwdqs.Fixture{
		"P528": {"ABC-123": {{QID: "Q1000"}}},
	})
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	rep := filepath.Join(dir, "report.yaml")
	require.NoError(t, os.WriteFile(in, []byte("Codigo,Un\nABC-123,220\nZZZ-9,115\n"), 0o644))

	code, stdout, errOut := execute(t, "merge",
		"--input", in, "--output", out, "--report", rep,
		"--endpoint", srv.URL+"/sparql", "--throttle", "0", "--no-bom",
	)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, stdout, "with_qid")

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Codigo,wikidata,Un\nABC-123,Q1000,220\nZZZ-9,,115\n", string(b))

	r, err := os.ReadFile(rep)
	require.NoError(t, err)
	assert.Contains(t, string(r), "status: matched")
}
