package identity

import (
	"sort"

	"github.com/retinalab/dcmexport/internal/diag"
)

// Resolver turns real patient identifiers into anonymized keys according to
// the run configuration. It is read-only after construction and safe for
// concurrent use by export workers.
type Resolver struct {
	keepPatientKey bool
	mapping        *Mapping // nil when no external mapping was supplied
}

// NewResolver builds a resolver. mappingPath may be empty; it is read at
// most once per run.
func NewResolver(keepPatientKey bool, mappingPath string) (*Resolver, error) {
	r := &Resolver{keepPatientKey: keepPatientKey}
	if mappingPath != "" {
		m, err := LoadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
		r.mapping = m
	}
	return r, nil
}

// Resolve returns the anonymized key for a real patient identifier. With
// "keep patient key" it is the identity function; with an external mapping
// a hit returns the mapped value and a miss falls back to the deterministic
// hash; otherwise the hash is used directly.
func (r *Resolver) Resolve(realKey string) string {
	if r.keepPatientKey {
		return realKey
	}
	if r.mapping != nil {
		if anon, ok := r.mapping.Lookup(realKey); ok {
			return anon
		}
	}
	return Hash(realKey)
}

// Mapping exposes the loaded external mapping, or nil.
func (r *Resolver) Mapping() *Mapping { return r.mapping }

// KeepPatientKey reports whether real keys pass through unchanged.
func (r *Resolver) KeepPatientKey() bool { return r.keepPatientKey }

// Dedupe sorts pairs by anonymized key and drops duplicates and empty
// entries. Aggregation across workers is order-insensitive because of this.
func Dedupe(pairs []Pair) []Pair {
	seen := make(map[Pair]bool, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p == (Pair{}) || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Anon != out[j].Anon {
			return out[i].Anon < out[j].Anon
		}
		return out[i].Original < out[j].Original
	})
	return out
}

// Reconcile closes out a run's identifier bookkeeping. The pair set is
// deduplicated and sorted first. With an external mapping, every anonymized
// key absent from the mapping file is reported individually and the reserved
// CSV is only written when at least one key was missing; without a mapping
// the full pair set is persisted. With "keep patient key" nothing is written.
// The caller supplies mappingPath for the warning text only.
func (r *Resolver) Reconcile(pairs []Pair, mappingPath, reservedPath string, sink diag.Sink) error {
	if r.keepPatientKey {
		return nil
	}

	unique := Dedupe(pairs)
	if len(unique) == 0 {
		return nil
	}

	save := true
	if r.mapping != nil {
		save = false
		for _, p := range unique {
			if !r.mapping.HasAnon(p.Anon) {
				save = true
				sink.Warnf("Missing map in %s: %s -> %s (<- new hash created)", mappingPath, p.Original, p.Anon)
			}
		}
	}
	if !save {
		return nil
	}
	return Save(reservedPath, unique, sink)
}
