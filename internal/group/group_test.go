package group

import (
	"fmt"
	"testing"

	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/diag"
)

func inst(forUID, acqTime string) *dcm.Instance {
	return &dcm.Instance{
		SourcePath:       fmt.Sprintf("%s-%s.dcm", forUID, acqTime),
		FrameOfReference: forUID,
		AcquisitionTime:  acqTime,
	}
}

func TestByFrameOfReference(t *testing.T) {
	instances := []*dcm.Instance{
		inst("1.2.3", ""),
		inst("4.5.6", ""),
		inst("1.2.3", ""),
		inst("", ""),
		inst("4.5.6", ""),
	}

	groups := ByFrameOfReference(instances)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	wantKeys := []string{"1.2.3", "4.5.6", UnknownKey}
	wantSizes := []int{2, 2, 1}
	for i, g := range groups {
		if g.Key != wantKeys[i] {
			t.Errorf("group %d key = %q, want %q", i, g.Key, wantKeys[i])
		}
		if len(g.Instances) != wantSizes[i] {
			t.Errorf("group %d size = %d, want %d", i, len(g.Instances), wantSizes[i])
		}
	}

	// Every instance lands in exactly one group.
	total := 0
	seen := map[*dcm.Instance]bool{}
	for _, g := range groups {
		for _, in := range g.Instances {
			if seen[in] {
				t.Errorf("instance %s assigned twice", in.SourcePath)
			}
			seen[in] = true
			total++
		}
	}
	if total != len(instances) {
		t.Errorf("partition covers %d instances, want %d", total, len(instances))
	}
}

func TestByAcquisitionTimeClusters(t *testing.T) {
	instances := []*dcm.Instance{
		inst("", "20230514093000"),
		inst("", "20230514093001.500000"), // within 2s of the first
		inst("", "20230514093010"),        // new cluster
		inst("", ""),                      // no timestamp
	}

	groups := ByAcquisitionTime(instances, 2.0, diag.Discard{})
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Key != "20230514093000" || len(groups[0].Instances) != 2 {
		t.Errorf("first cluster = %q/%d", groups[0].Key, len(groups[0].Instances))
	}
	if groups[1].Key != "20230514093010" || len(groups[1].Instances) != 1 {
		t.Errorf("second cluster = %q/%d", groups[1].Key, len(groups[1].Instances))
	}
	if groups[2].Key != UnknownKey {
		t.Errorf("last group key = %q, want %q", groups[2].Key, UnknownKey)
	}
}

func TestByAcquisitionTimeToleranceInclusive(t *testing.T) {
	instances := []*dcm.Instance{
		inst("", "20230514093000"),
		inst("", "20230514093002"), // exactly at tolerance
	}
	groups := ByAcquisitionTime(instances, 2.0, diag.Discard{})
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 (tolerance is inclusive)", len(groups))
	}
}

func TestByAcquisitionTimeGreedyOrderDependence(t *testing.T) {
	// B is within tolerance of A, C is within tolerance of B but not A.
	// Greedy assignment pins B to A's cluster, so C founds its own.
	instances := []*dcm.Instance{
		inst("", "20230514093000"),
		inst("", "20230514093002"),
		inst("", "20230514093004"),
	}
	groups := ByAcquisitionTime(instances, 2.0, diag.Discard{})
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if len(groups[0].Instances) != 2 || len(groups[1].Instances) != 1 {
		t.Errorf("cluster sizes = %d/%d, want 2/1",
			len(groups[0].Instances), len(groups[1].Instances))
	}
}

func TestByAcquisitionTimeUnparseableWarns(t *testing.T) {
	sink := &diag.Recorder{}
	groups := ByAcquisitionTime([]*dcm.Instance{
		inst("", "yesterday at noon"),
	}, 2.0, sink)

	if len(groups) != 1 || groups[0].Key != UnknownKey {
		t.Fatalf("groups = %+v, want single unknown bucket", groups)
	}
	if n := sink.Count(diag.Warn); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}
