package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/dcm/dcmtest"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/identity"
)

func testConfig(t *testing.T, inputDir string) config.Config {
	t.Helper()
	t.Chdir(t.TempDir()) // keeps the reserved CSV out of the repo
	cfg := config.Default()
	cfg.InputDir = inputDir
	cfg.OutputDir = filepath.Join(t.TempDir(), "exported_data")
	return cfg
}

func writeTopconFixture(t *testing.T, dir string) {
	dcmtest.WriteFile(t, filepath.Join(dir, "fundus.dcm"), dcmtest.Options{
		Modality:         "OP",
		Manufacturer:     "TOPCON",
		PatientID:        "CF-0042",
		FrameOfReference: "1.2.3.4",
		AcquisitionTime:  "20230514093012.483920",
		Laterality:       "R",
	})
}

func readDirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestRunTopconScenario(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)

	summary, err := Run(cfg, diag.Discard{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	names := readDirNames(t, cfg.OutputDir)
	if len(names) != 1 {
		t.Fatalf("output dirs = %v, want 1", names)
	}
	name := names[0]
	if !strings.HasSuffix(name, "_OD_CP") {
		t.Errorf("dir %q does not end in _OD_CP", name)
	}
	if !strings.HasPrefix(name, identity.Hash("CF-0042")+"_") {
		t.Errorf("dir %q does not start with the anonymized key", name)
	}

	exported := filepath.Join(cfg.OutputDir, name)
	if _, err := os.Stat(filepath.Join(exported, "metadata.json")); err != nil {
		t.Error("metadata.json missing")
	}
	if _, err := os.Stat(filepath.Join(exported, "CP-0_0.png")); err != nil {
		t.Error("CP-0_0.png missing")
	}

	if _, err := os.Stat(identity.ReservedCSV); err != nil {
		t.Error("reserved CSV not written")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)

	if _, err := Run(cfg, diag.Discard{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	name := readDirNames(t, cfg.OutputDir)[0]
	metaPath := filepath.Join(cfg.OutputDir, name, "metadata.json")
	before, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}

	sink := &diag.Recorder{}
	summary, err := Run(cfg, sink)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Processed != 0 || summary.Skipped != 1 {
		t.Fatalf("second run summary = %+v, want pure skip", summary)
	}

	after, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("metadata.json changed across an idempotent rerun")
	}
}

func TestRunOverwriteReexports(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)

	if _, err := Run(cfg, diag.Discard{}); err != nil {
		t.Fatal(err)
	}
	cfg.Overwrite = true
	summary, err := Run(cfg, diag.Discard{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 {
		t.Fatalf("overwrite summary = %+v", summary)
	}
}

func TestRunResetClearsPreviousExports(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)

	if _, err := Run(cfg, diag.Discard{}); err != nil {
		t.Fatal(err)
	}

	// A stale export dir and an unrelated file share the output dir.
	stale := filepath.Join(cfg.OutputDir, "0000000000_20200101_OD_CP")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "metadata.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(cfg.OutputDir, "notes.txt")
	if err := os.WriteFile(unrelated, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg.Reset = true
	summary, err := Run(cfg, diag.Discard{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 {
		t.Fatalf("reset summary = %+v, want full re-export", summary)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale export dir survived reset")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated file removed by reset")
	}
}

func TestRunDeterministicOutput(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)

	read := func() (string, []byte) {
		cfg := testConfig(t, input)
		if _, err := Run(cfg, diag.Discard{}); err != nil {
			t.Fatal(err)
		}
		name := readDirNames(t, cfg.OutputDir)[0]
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, name, "metadata.json"))
		if err != nil {
			t.Fatal(err)
		}
		return name, data
	}

	nameA, metaA := read()
	nameB, metaB := read()
	if nameA != nameB {
		t.Errorf("directory names differ: %q vs %q", nameA, nameB)
	}
	if string(metaA) != string(metaB) {
		t.Error("metadata.json differs across identical runs")
	}
}

func TestRunTimeGrouping(t *testing.T) {
	input := t.TempDir()
	dcmtest.WriteFile(t, filepath.Join(input, "a.dcm"), dcmtest.Options{
		Modality:        "OPT",
		PatientID:       "CF-0042",
		AcquisitionTime: "20230514093012.100000",
		Laterality:      "L",
	})
	dcmtest.WriteFile(t, filepath.Join(input, "b.dcm"), dcmtest.Options{
		Modality:        "OPT",
		PatientID:       "CF-0042",
		AcquisitionTime: "20230514093013.500000",
		Laterality:      "L",
		Seed:            7,
	})

	cfg := testConfig(t, input)
	cfg.Group = true

	summary, err := Run(cfg, diag.Discard{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Groups != 1 || summary.Processed != 1 {
		t.Fatalf("summary = %+v, want one time cluster", summary)
	}

	names := readDirNames(t, cfg.OutputDir)
	if len(names) != 1 || !strings.HasSuffix(names[0], "_OS_OCT") {
		t.Errorf("output dirs = %v, want single _OS_OCT dir", names)
	}
}

func warnedAbout(sink *diag.Recorder, substr string) bool {
	for _, m := range sink.Messages() {
		if m.Level == diag.Warn && strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func TestRunWarnsOnToleranceMismatch(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)
	cfg.Group = true
	cfg.ImageFormat = "gif" // unsupported, fails every cluster

	sink := &diag.Recorder{}
	summary, err := Run(cfg, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != summary.Groups || summary.Processed != 0 {
		t.Fatalf("summary = %+v, want every cluster failed", summary)
	}
	if !warnedAbout(sink, "may need adjusting") {
		t.Errorf("no tolerance-tuning warning recorded, got %+v", sink.Messages())
	}
}

func TestRunNoToleranceWarningWhenAllExported(t *testing.T) {
	input := t.TempDir()
	writeTopconFixture(t, input)
	cfg := testConfig(t, input)
	cfg.Group = true

	sink := &diag.Recorder{}
	summary, err := Run(cfg, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != summary.Groups {
		t.Fatalf("summary = %+v, want every cluster exported", summary)
	}
	if warnedAbout(sink, "may need adjusting") {
		t.Error("tolerance-tuning warning recorded on a clean run")
	}
}

func TestRunWarnsOnUnrecognisedModality(t *testing.T) {
	input := t.TempDir()
	dcmtest.WriteFile(t, filepath.Join(input, "mystery.dcm"), dcmtest.Options{
		Modality:          "OP",
		Manufacturer:      "ACME",
		SeriesDescription: "plain series",
		PatientID:         "CF-0042",
		AcquisitionTime:   "20230514093012",
		Laterality:        "R",
	})
	cfg := testConfig(t, input)

	sink := &diag.Recorder{}
	summary, err := Run(cfg, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("summary = %+v, want the instance exported anyway", summary)
	}
	if !warnedAbout(sink, "unrecognised modality") {
		t.Errorf("no unrecognised-modality warning recorded, got %+v", sink.Messages())
	}

	names := readDirNames(t, cfg.OutputDir)
	if len(names) != 1 || !strings.HasSuffix(names[0], "_OD_U") {
		t.Errorf("output dirs = %v, want single _OD_U dir", names)
	}
}

func TestRunEmptyInput(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	summary, err := Run(cfg, diag.Discard{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.FilesFound != 0 || summary.Processed != 0 {
		t.Fatalf("summary = %+v, want empty", summary)
	}
	if _, err := os.Stat(identity.ReservedCSV); err == nil {
		t.Error("reserved CSV written for an empty run")
	}
}
