package export

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/group"
	"github.com/retinalab/dcmexport/internal/identity"
)

// Summary is what a full run produced.
type Summary struct {
	FilesFound int // candidate DICOM files seen under the input dir
	Groups     int
	Processed  int
	Skipped    int
	Failed     int
	Bytes      int64
	OutputDir  string
}

// Run executes the whole pipeline against a validated configuration: load
// and classify, group, export every group over the worker pool, prune empty
// directories, then reconcile the identity pairs. Per-group failures are
// reported through the sink and counted; they do not abort the run.
func Run(cfg config.Config, sink diag.Sink) (*Summary, error) {
	summary := &Summary{OutputDir: cfg.OutputDir}

	batch, err := dcm.LoadDir(cfg.InputDir, sink)
	if err != nil {
		return nil, err
	}
	summary.FilesFound = len(batch.Instances) + batch.SkippedFiles + batch.Unsupported
	if len(batch.Instances) == 0 {
		return summary, nil
	}

	resolver, err := identity.NewResolver(cfg.KeepPatientKey(), cfg.Mapping)
	if err != nil {
		return nil, err
	}

	if cfg.Reset {
		if err := resetOutput(cfg.OutputDir, sink); err != nil {
			return nil, err
		}
	}

	var groups []*group.Group
	startedEmpty := false
	if cfg.Group {
		groups = group.ByAcquisitionTime(batch.Instances, cfg.Tolerance, sink)
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
		startedEmpty = dirIsEmpty(cfg.OutputDir)
	} else {
		groups = group.ByFrameOfReference(batch.Instances)
	}
	summary.Groups = len(groups)

	results := exportAll(cfg, cfg.OutputDir, groups, resolver, cfg.Group, sink)

	var pairs []identity.Pair
	for _, r := range results {
		switch r.Status {
		case StatusProcessed:
			summary.Processed++
			summary.Bytes += r.Bytes
			pairs = append(pairs, r.Pair)
		case StatusSkipped:
			summary.Skipped++
			pairs = append(pairs, r.Pair)
		case StatusFailed:
			summary.Failed++
			sink.Errorf("export %s: %v", r.Dir, r.Err)
		}
	}

	PruneEmptyDirs(cfg.OutputDir, cfg.Jobs)

	if cfg.Group && startedEmpty && summary.Processed != summary.Groups {
		sink.Warnf("exported %d of %d time clusters; the grouping tolerance of %.1fs may need adjusting",
			summary.Processed, summary.Groups, cfg.Tolerance)
	}

	if err := resolver.Reconcile(pairs, cfg.Mapping, identity.ReservedCSV, sink); err != nil {
		return summary, err
	}
	return summary, nil
}

// resetOutput removes earlier export directories beneath dir. Only
// directories that hold a metadata.json are removed, so files unrelated to
// an export survive a reset.
func resetOutput(dir string, sink diag.Sink) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(sub, "metadata.json")); err != nil {
			continue
		}
		sink.Infof("Resetting %s", sub)
		if err := os.RemoveAll(sub); err != nil {
			return err
		}
	}
	return nil
}

// dirIsEmpty treats a missing directory as empty.
func dirIsEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return os.IsNotExist(err)
	}
	return len(entries) == 0
}
