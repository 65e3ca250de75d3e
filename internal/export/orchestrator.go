package export

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/group"
	"github.com/retinalab/dcmexport/internal/identity"
	"github.com/retinalab/dcmexport/internal/modality"
)

// Status is a group's terminal export state.
type Status int

const (
	StatusProcessed Status = iota
	StatusSkipped
	StatusFailed
)

// Result records the outcome of exporting one group.
type Result struct {
	Dir    string
	Status Status
	Pair   identity.Pair
	Bytes  int64
	Err    error
}

// exportGroup runs one group through the terminal-state machine: resolve
// the target directory, honor the idempotence check or the overwrite flag,
// render every frame, then write the metadata document.
func exportGroup(cfg config.Config, root string, g *group.Group, resolver *identity.Resolver, timeGrouped bool, sink diag.Sink) Result {
	realKey := g.Instances[0].PatientID
	patientKey := resolver.Resolve(realKey)
	pair := identity.Pair{Anon: patientKey, Original: realKey}

	dir := filepath.Join(root, DirName(patientKey, g, timeGrouped))

	if cfg.Overwrite {
		if err := os.RemoveAll(dir); err != nil {
			return Result{Dir: dir, Status: StatusFailed, Err: err}
		}
	} else if hasExport(dir, cfg.ImageFormat) {
		sink.Infof("Output directory '%s' already exists with metadata and images. Skipping...", dir)
		return Result{Dir: dir, Status: StatusSkipped, Pair: pair}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Dir: dir, Status: StatusFailed, Err: err}
	}

	// Accession counters are per run, so work on copies and leave the
	// loaded instances untouched.
	instances := make([]*dcm.Instance, len(g.Instances))
	for i, src := range g.Instances {
		clone := *src
		instances[i] = &clone
		if clone.Modality == modality.Unknown {
			sink.Warnf("unrecognised modality for %s, exporting as %s", clone.SourcePath, clone.Modality.Code())
		}
	}

	bytes, err := renderGroup(dir, instances, cfg.ImageFormat)
	if err != nil {
		return Result{Dir: dir, Status: StatusFailed, Err: err}
	}

	doc := BuildDocument(instances, patientKey, cfg, sink)
	if err := writeMetadata(dir, doc); err != nil {
		return Result{Dir: dir, Status: StatusFailed, Err: err}
	}
	return Result{Dir: dir, Status: StatusProcessed, Pair: pair, Bytes: bytes}
}

// hasExport reports whether dir already holds a completed export: a
// metadata document plus at least one image in the configured format.
// Foreign or partial files do not count either way.
func hasExport(dir, format string) bool {
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	suffix := "." + format
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			return true
		}
	}
	return false
}

// exportAll fans the groups out over a bounded worker pool and collects
// results. Workers share nothing mutable; aggregation happens here once
// the result channel drains.
func exportAll(cfg config.Config, root string, groups []*group.Group, resolver *identity.Resolver, timeGrouped bool, sink diag.Sink) []Result {
	numWorkers := cfg.Jobs
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(groups) {
		numWorkers = len(groups)
	}

	taskChan := make(chan *group.Group, len(groups))
	resultChan := make(chan Result, len(groups))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range taskChan {
				resultChan <- exportGroup(cfg, root, g, resolver, timeGrouped, sink)
			}
		}()
	}

	for _, g := range groups {
		taskChan <- g
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Result, 0, len(groups))
	for r := range resultChan {
		results = append(results, r)
	}
	return results
}
