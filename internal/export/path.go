// Package export renders groups of instances into de-identified image
// directories with accompanying metadata documents.
package export

import (
	"fmt"

	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/group"
	"github.com/retinalab/dcmexport/internal/identity"
	"github.com/retinalab/dcmexport/internal/modality"
)

// primaryModality picks the modality that names a group's directory. A
// volume scan outranks its accompanying en-face images; otherwise the first
// instance decides.
func primaryModality(g *group.Group) modality.Modality {
	for _, inst := range g.Instances {
		if inst.Modality == modality.OCT {
			return modality.OCT
		}
	}
	return g.Instances[0].Modality
}

// dateTag derives the timestamp part of a directory name from the first
// instance carrying a parseable acquisition time, "unknown" when none does.
func dateTag(g *group.Group) string {
	for _, inst := range g.Instances {
		if tag := dcm.DateTag(inst.AcquisitionTime); tag != "" {
			return tag
		}
	}
	return group.UnknownKey
}

// DirName composes the output directory name for a group:
// <patient_key>_<date_tag>_<laterality>_<modality_code>. When grouping is
// frame-of-reference based the date tag carries a short hash of the UID so
// that same-timestamp studies stay apart; a time cluster's timestamp is
// already its key, so no suffix is needed there.
func DirName(patientKey string, g *group.Group, timeGrouped bool) string {
	tag := dateTag(g)
	if !timeGrouped && g.Key != group.UnknownKey {
		tag += "-" + identity.ShortHash(g.Key)
	}
	lat := g.Instances[0].Laterality.Code()
	return fmt.Sprintf("%s_%s_%s_%s", patientKey, tag, lat, primaryModality(g).Code())
}
