package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retinalab/dcmexport/internal/dcm/dcmtest"
	"github.com/retinalab/dcmexport/internal/identity"
)

func TestRunMissingArgument(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Errorf("run() = %d, want 2 for missing INPUT_DIR", code)
	}
	if code := run([]string{"a", "b"}); code != 2 {
		t.Errorf("run(a b) = %d, want 2 for extra arguments", code)
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	input := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"nonexistent input", []string{filepath.Join(input, "missing")}},
		{"tol without group", []string{"-t", "5", input}},
		{"keep p with mapping", []string{"-k", "p", "-m", "map.csv", input}},
		{"reserved mapping name", []string{"-m", identity.ReservedCSV, input}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(tt.args); code != 1 {
				t.Errorf("run(%v) = %d, want 1", tt.args, code)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("run(--version) = %d, want 0", code)
	}
}

func TestRunExportsFixture(t *testing.T) {
	t.Chdir(t.TempDir())

	input := t.TempDir()
	dcmtest.WriteFile(t, filepath.Join(input, "scan.dcm"), dcmtest.Options{
		Modality:         "OP",
		Manufacturer:     "TOPCON",
		PatientID:        "CF-0042",
		FrameOfReference: "1.2.3.4",
		AcquisitionTime:  "20230514093012",
		Laterality:       "R",
	})
	output := filepath.Join(t.TempDir(), "out")

	if code := run([]string{"-q", "-o", output, input}); code != 0 {
		t.Fatalf("run = %d, want 0", code)
	}

	entries, err := os.ReadDir(output)
	if err != nil || len(entries) != 1 {
		t.Fatalf("output dirs = %v (%v), want one export", entries, err)
	}
	if _, err := os.Stat(filepath.Join(output, entries[0].Name(), "metadata.json")); err != nil {
		t.Error("metadata.json missing")
	}
}

func TestRunEmptyInputSucceeds(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"-q", t.TempDir()}); code != 0 {
		t.Errorf("run on empty input = %d, want 0", code)
	}
}
