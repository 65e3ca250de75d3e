package dcm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/modality"
)

// dicomExtensions are the file extensions treated as DICOM without
// inspecting content.
var dicomExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
}

// FindFiles walks root and returns every DICOM file beneath it, sorted.
// Files without a recognised extension are admitted when they carry the
// DICM magic bytes at offset 128.
func FindFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if dicomExtensions[ext] || (ext == "" && hasDicomMagic(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// hasDicomMagic reports whether the file carries "DICM" at byte offset 128.
func hasDicomMagic(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 132)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return string(header[128:132]) == "DICM"
}

// Batch is the outcome of loading a directory tree.
type Batch struct {
	Instances    []*Instance
	SkippedFiles int // unreadable or pixel-less files
	Unsupported  int // readable files whose modality code is not OP/OPT
}

// LoadDir loads and classifies every DICOM file under dir. Unreadable files
// are warned about and skipped; instances whose raw modality code is not a
// recognised ophthalmic device code are dropped silently, as they are not
// errors. Instances are returned sorted by raw modality code then path so
// downstream grouping is deterministic.
func LoadDir(dir string, sink diag.Sink) (*Batch, error) {
	files, err := FindFiles(dir)
	if err != nil {
		return nil, err
	}

	batch := &Batch{}
	for _, path := range files {
		inst, err := Load(path)
		if err != nil {
			sink.Warnf("skipping %s: %v", path, err)
			batch.SkippedFiles++
			continue
		}
		m, ok := modality.Classify(modality.Attributes{
			RawCode:           inst.RawCode,
			Manufacturer:      inst.Manufacturer,
			SeriesDescription: inst.SeriesDescription,
			FieldOfView:       inst.fieldOfView(),
			HasContrastAgent:  inst.hasContrastAgent,
		})
		if !ok {
			batch.Unsupported++
			continue
		}
		inst.Modality = m
		batch.Instances = append(batch.Instances, inst)
	}

	sort.SliceStable(batch.Instances, func(i, j int) bool {
		a, b := batch.Instances[i], batch.Instances[j]
		if a.RawCode != b.RawCode {
			return a.RawCode < b.RawCode
		}
		return a.SourcePath < b.SourcePath
	})
	return batch, nil
}

// Load parses a single DICOM file into an Instance. The modality field is
// left unclassified (RawCode only); LoadDir applies classification.
func Load(path string) (*Instance, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	inst := &Instance{
		SourcePath:        path,
		RawCode:           findString(&ds, tag.Modality),
		PatientID:         findString(&ds, tag.PatientID),
		FrameOfReference:  findString(&ds, tag.FrameOfReferenceUID),
		AcquisitionTime:   findString(&ds, tag.AcquisitionDateTime),
		SeriesDescription: findString(&ds, tag.SeriesDescription),
		Manufacturer:      findString(&ds, tag.Manufacturer),
		StudyUID:          findString(&ds, tag.StudyInstanceUID),
		BirthDate:         findString(&ds, tag.PatientBirthDate),
		Sex:               findString(&ds, tag.PatientSex),
		ScannerModel:      findString(&ds, tag.ManufacturerModelName),
		SerialNumber:      findString(&ds, tag.DeviceSerialNumber),
		SoftwareVersion:   findString(&ds, tag.SoftwareVersions),
	}

	inst.GivenName, inst.FamilyName = splitPersonName(findString(&ds, tag.PatientName))

	inst.LateralityRaw = findString(&ds, tag.ImageLaterality)
	if inst.LateralityRaw == "" {
		inst.LateralityRaw = findString(&ds, tag.Laterality)
	}
	inst.Laterality = ParseLaterality(inst.LateralityRaw)

	inst.Rows, _ = findInt(&ds, tag.Rows)
	inst.Columns, _ = findInt(&ds, tag.Columns)
	if spacing := findFloats(&ds, tag.PixelSpacing); len(spacing) >= 2 {
		inst.PixelSpacing = spacing[:2]
	}
	if fov := findFloats(&ds, tag.HorizontalFieldOfView); len(fov) > 0 {
		inst.FieldOfView = &fov[0]
	}
	if _, err := ds.FindElementByTag(tag.ContrastBolusAgentSequence); err == nil {
		inst.hasContrastAgent = true
	}

	if items := sequenceItems(&ds, tag.AnatomicRegionSequence); len(items) > 0 {
		inst.AnatomicRegion = itemString(items[0], tag.CodeMeaning)
	}

	extractVolumeGeometry(&ds, inst)
	extractFrameLocations(&ds, inst)

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data")
	}
	info, ok := pixelElem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("no pixel frames")
	}
	inst.Frames = info.Frames

	inst.FrameCount, _ = findInt(&ds, tag.NumberOfFrames)
	if inst.FrameCount < 1 {
		inst.FrameCount = 1
	}
	if inst.FrameCount > len(inst.Frames) {
		inst.FrameCount = len(inst.Frames)
	}
	return inst, nil
}

// extractVolumeGeometry pulls the pixel-measures data OCT dimensions are
// computed from. OPTOPOL devices record it per frame rather than shared.
// Anything malformed leaves Geometry absent rather than failing the load.
func extractVolumeGeometry(ds *dicom.Dataset, inst *Instance) {
	groups := tag.SharedFunctionalGroupsSequence
	if strings.Contains(strings.ToUpper(inst.Manufacturer), "OPTOPOL") {
		groups = tag.PerFrameFunctionalGroupsSequence
	}
	items := sequenceItems(ds, groups)
	if len(items) == 0 {
		return
	}
	measures := nestedItems(items[0], tag.PixelMeasuresSequence)
	if len(measures) == 0 {
		return
	}
	spacing := itemFloats(measures[0], tag.PixelSpacing)
	if len(spacing) < 2 {
		return
	}
	inst.Geometry = VolumeGeometry{
		Present:    true,
		RowSpacing: spacing[0],
		ColSpacing: spacing[1],
	}
	if thickness := itemFloats(measures[0], tag.SliceThickness); len(thickness) > 0 {
		inst.Geometry.SliceThickness = thickness[0]
	}
}

// extractFrameLocations reads the per-frame ophthalmic frame location
// coordinates used for OCT contents metadata.
func extractFrameLocations(ds *dicom.Dataset, inst *Instance) {
	items := sequenceItems(ds, tag.PerFrameFunctionalGroupsSequence)
	if items == nil {
		return
	}
	inst.HasPerFrameGroups = true
	inst.FrameLocations = make([]*FrameLocation, len(items))
	for i, item := range items {
		locations := nestedItems(item, tag.OphthalmicFrameLocationSequence)
		if len(locations) == 0 {
			continue
		}
		coords := itemFloats(locations[0], tag.ReferenceCoordinates)
		if len(coords) < 4 {
			continue
		}
		loc := FrameLocation{coords[0], coords[1], coords[2], coords[3]}
		inst.FrameLocations[i] = &loc
	}
}

// splitPersonName splits a DICOM PN value (family^given^middle^prefix^suffix)
// into given and family components.
func splitPersonName(pn string) (given, family string) {
	if pn == "" {
		return "", ""
	}
	parts := strings.Split(pn, "^")
	family = parts[0]
	if len(parts) > 1 {
		given = parts[1]
	}
	return given, family
}

// findString returns the first string value of a tag, "" when absent.
func findString(ds *dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return ""
	}
	return firstString(el.Value.GetValue())
}

func firstString(v any) string {
	switch val := v.(type) {
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	case string:
		return strings.TrimSpace(val)
	}
	return ""
}

// findInt returns the first integer value of a tag. Integer-string values
// are converted.
func findInt(ds *dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return 0, false
	}
	return firstInt(el.Value.GetValue())
}

func firstInt(v any) (int, bool) {
	switch val := v.(type) {
	case []int:
		if len(val) > 0 {
			return val[0], true
		}
	case int:
		return val, true
	case []string:
		if len(val) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(val[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// findFloats returns a tag's values as floats. Decimal strings (the DS VR)
// arrive as strings from the parser and are converted here.
func findFloats(ds *dicom.Dataset, t tag.Tag) []float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	return toFloats(el.Value.GetValue())
}

func toFloats(v any) []float64 {
	switch val := v.(type) {
	case []float64:
		return val
	case []int:
		out := make([]float64, len(val))
		for i, n := range val {
			out[i] = float64(n)
		}
		return out
	case []string:
		out := make([]float64, 0, len(val))
		for _, s := range val {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil
			}
			out = append(out, f)
		}
		return out
	}
	return nil
}

// sequenceItems returns the item element lists of a sequence tag, nil when
// the tag is absent or not a sequence.
func sequenceItems(ds *dicom.Dataset, t tag.Tag) [][]*dicom.Element {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	return itemsOf(el)
}

func itemsOf(el *dicom.Element) [][]*dicom.Element {
	seq, ok := el.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		elements, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		out = append(out, elements)
	}
	return out
}

// nestedItems resolves a sequence tag inside a sequence item.
func nestedItems(item []*dicom.Element, t tag.Tag) [][]*dicom.Element {
	el := itemElement(item, t)
	if el == nil {
		return nil
	}
	return itemsOf(el)
}

func itemElement(item []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, el := range item {
		if el.Tag == t {
			return el
		}
	}
	return nil
}

func itemString(item []*dicom.Element, t tag.Tag) string {
	el := itemElement(item, t)
	if el == nil || el.Value == nil {
		return ""
	}
	return firstString(el.Value.GetValue())
}

func itemFloats(item []*dicom.Element, t tag.Tag) []float64 {
	el := itemElement(item, t)
	if el == nil || el.Value == nil {
		return nil
	}
	return toFloats(el.Value.GetValue())
}
