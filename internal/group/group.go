// Package group partitions loaded instances into export groups, either by
// frame-of-reference UID or by acquisition-time proximity.
package group

import (
	"math"

	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/diag"
)

// UnknownKey collects instances that cannot be assigned a real grouping
// key: missing frame-of-reference UID, or missing/unparseable timestamp.
const UnknownKey = "unknown"

// Group is an ordered set of instances exported into one directory.
type Group struct {
	// Key is the frame-of-reference UID, the founding instance's raw
	// acquisition timestamp, or UnknownKey.
	Key       string
	Instances []*dcm.Instance
}

// ByFrameOfReference partitions instances by their frame-of-reference UID.
// Groups come back in first-seen order; instances without a UID land in a
// single UnknownKey group.
func ByFrameOfReference(instances []*dcm.Instance) []*Group {
	index := map[string]*Group{}
	var groups []*Group
	for _, inst := range instances {
		key := inst.FrameOfReference
		if key == "" {
			key = UnknownKey
		}
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Instances = append(g.Instances, inst)
	}
	return groups
}

// ByAcquisitionTime clusters instances whose acquisition timestamps lie
// within tol seconds of an existing cluster's founding timestamp. Clustering
// is greedy in input order: each instance joins the first cluster it is
// close enough to, otherwise it founds a new one keyed by its own raw
// timestamp. Instances without a timestamp go to the UnknownKey group
// silently; an unparseable timestamp is warned about first.
func ByAcquisitionTime(instances []*dcm.Instance, tol float64, sink diag.Sink) []*Group {
	index := map[string]*Group{}
	var groups []*Group

	place := func(key string, inst *dcm.Instance) {
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Instances = append(g.Instances, inst)
	}

	for _, inst := range instances {
		raw := inst.AcquisitionTime
		if raw == "" {
			place(UnknownKey, inst)
			continue
		}
		ts, err := dcm.ParseTimestamp(raw)
		if err != nil {
			sink.Warnf("unparseable acquisition time %q in %s", raw, inst.SourcePath)
			place(UnknownKey, inst)
			continue
		}

		assigned := false
		for _, g := range groups {
			if g.Key == UnknownKey {
				continue
			}
			ref, err := dcm.ParseTimestamp(g.Key)
			if err != nil {
				continue
			}
			if math.Abs(ts.Sub(ref).Seconds()) <= tol {
				g.Instances = append(g.Instances, inst)
				assigned = true
				break
			}
		}
		if !assigned {
			place(raw, inst)
		}
	}
	return groups
}
