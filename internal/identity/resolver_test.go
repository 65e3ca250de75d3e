package identity

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/retinalab/dcmexport/internal/diag"
)

func TestResolver_KeepPatientKey(t *testing.T) {
	r, err := NewResolver(true, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve("MRN-42"); got != "MRN-42" {
		t.Errorf("Resolve = %q, want identity", got)
	}
}

func TestResolver_HashFallback(t *testing.T) {
	r, err := NewResolver(false, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve("patient-001"); got != "4276595230" {
		t.Errorf("Resolve = %q, want deterministic hash", got)
	}
}

func TestResolver_MappingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.csv")
	writeFile(t, path, "study_id,patient_id\n9999999999,patient-001\n")

	r, err := NewResolver(false, path)
	if err != nil {
		t.Fatal(err)
	}
	// A mapped key must return exactly the mapped value, not the hash.
	if got := r.Resolve("patient-001"); got != "9999999999" {
		t.Errorf("Resolve(mapped) = %q, want 9999999999", got)
	}
	// An unmapped key falls back to the hash.
	if got := r.Resolve("patient-002"); got != "3467949913" {
		t.Errorf("Resolve(unmapped) = %q, want hash fallback", got)
	}
}

func TestDedupe(t *testing.T) {
	in := []Pair{
		{Anon: "2", Original: "b"},
		{Anon: "1", Original: "a"},
		{Anon: "2", Original: "b"},
		{},
	}
	want := []Pair{{Anon: "1", Original: "a"}, {Anon: "2", Original: "b"}}
	if got := Dedupe(in); !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe = %v, want %v", got, want)
	}
}

func TestReconcile_WarnsOnMissingMappings(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "map.csv")
	writeFile(t, mapPath, "study_id,patient_id\n1111111111,alice\n")
	reserved := filepath.Join(dir, ReservedCSV)

	r, err := NewResolver(false, mapPath)
	if err != nil {
		t.Fatal(err)
	}
	sink := &diag.Recorder{}
	pairs := []Pair{
		{Anon: "1111111111", Original: "alice"},
		{Anon: "3467949913", Original: "patient-002"},
	}
	if err := r.Reconcile(pairs, mapPath, reserved, sink); err != nil {
		t.Fatal(err)
	}

	if n := sink.Count(diag.Warn); n != 1 {
		t.Fatalf("want 1 warning, got %d: %v", n, sink.Messages())
	}
	msg := sink.Messages()[0].Text
	if !strings.Contains(msg, "patient-002") || !strings.Contains(msg, "3467949913") {
		t.Errorf("warning should name real and generated key, got %q", msg)
	}
	// A missing entry triggers persisting the full pair set.
	if _, err := os.Stat(reserved); err != nil {
		t.Errorf("reserved CSV should be written: %v", err)
	}
}

func TestReconcile_FullyMappedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "map.csv")
	writeFile(t, mapPath, "study_id,patient_id\n1111111111,alice\n")
	reserved := filepath.Join(dir, ReservedCSV)

	r, err := NewResolver(false, mapPath)
	if err != nil {
		t.Fatal(err)
	}
	sink := &diag.Recorder{}
	pairs := []Pair{{Anon: "1111111111", Original: "alice"}}
	if err := r.Reconcile(pairs, mapPath, reserved, sink); err != nil {
		t.Fatal(err)
	}
	if n := sink.Count(diag.Warn); n != 0 {
		t.Errorf("want no warnings, got %v", sink.Messages())
	}
	if _, err := os.Stat(reserved); !os.IsNotExist(err) {
		t.Error("reserved CSV must not be written when mapping covers all keys")
	}
}

func TestReconcile_NoMappingPersistsPairs(t *testing.T) {
	dir := t.TempDir()
	reserved := filepath.Join(dir, ReservedCSV)

	r, err := NewResolver(false, "")
	if err != nil {
		t.Fatal(err)
	}
	pairs := []Pair{
		{Anon: "2", Original: "b"},
		{Anon: "1", Original: "a"},
	}
	if err := r.Reconcile(pairs, "", reserved, diag.Discard{}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(reserved)
	if err != nil {
		t.Fatal(err)
	}
	want := "study_id,patient_id\n1,a\n2,b\n"
	if string(got) != want {
		t.Errorf("reserved = %q, want sorted rows %q", got, want)
	}
}

func TestReconcile_KeepPatientKeyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	reserved := filepath.Join(dir, ReservedCSV)
	r, err := NewResolver(true, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Reconcile([]Pair{{Anon: "a", Original: "a"}}, "", reserved, diag.Discard{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(reserved); !os.IsNotExist(err) {
		t.Error("keep-patient-key runs must not persist a mapping")
	}
}
