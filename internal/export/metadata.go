package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retinalab/dcmexport/internal/config"
	"github.com/retinalab/dcmexport/internal/dcm"
	"github.com/retinalab/dcmexport/internal/diag"
	"github.com/retinalab/dcmexport/internal/modality"
)

// ParserVersion is the metadata schema revision consumers key on.
var ParserVersion = []int{1, 5, 2}

// ToolVersion is this tool's release version.
var ToolVersion = []int{1, 0, 0}

// ToolVersionString renders ToolVersion as a dotted string for the CLI.
func ToolVersionString() string {
	return fmt.Sprintf("%d.%d.%d", ToolVersion[0], ToolVersion[1], ToolVersion[2])
}

// dobSentinel replaces the real date of birth unless retention asks
// otherwise.
const dobSentinel = "1001-01-01"

// Document is the metadata.json payload. Field order is the serialized key
// order.
type Document struct {
	Patient       Patient  `json:"patient"`
	Exam          Exam     `json:"exam"`
	Series        Series   `json:"series"`
	Images        ImageSet `json:"images"`
	ParserVersion []int    `json:"parser_version"`
	ToolVersion   []int    `json:"tool_version"`
}

type Patient struct {
	PatientKey  string  `json:"patient_key"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Gender      *string `json:"gender"`
	SourceID    string  `json:"source_id"`
}

type Exam struct {
	Manufacturer            string `json:"manufacturer"`
	ScanDatetime            string `json:"scan_datetime"`
	ScannerModel            string `json:"scanner_model"`
	ScannerSerialNumber     string `json:"scanner_serial_number"`
	ScannerSoftwareVersion  string `json:"scanner_software_version"`
	ScannerLastCalibration  string `json:"scanner_last_calibration_date"`
	SourceID                string `json:"source_id"`
}

type Series struct {
	Laterality string `json:"laterality"`
	Fixation   string `json:"fixation"`
	Anterior   string `json:"anterior"`
	Protocol   string `json:"protocol"`
	SourceID   string `json:"source_id"`
}

type ImageSet struct {
	Images []ImageMeta `json:"images"`
}

type ImageMeta struct {
	Modality      string    `json:"modality"`
	Group         int       `json:"group"`
	Size          PixelSize `json:"size"`
	FieldOfView   *float64  `json:"field_of_view"`
	SourceID      string    `json:"source_id"`
	DimensionsMM  *Extent   `json:"dimensions_mm,omitempty"`
	ResolutionsMM *Extent   `json:"resolutions_mm,omitempty"`
	Contents      []Content `json:"contents"`
}

type PixelSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Extent is a physical measurement in millimetres. Depth applies to volume
// scans only.
type Extent struct {
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Depth  *float64 `json:"depth,omitempty"`
}

// Content describes what one exported frame shows. A 2D image contributes a
// single empty object; OCT B-scans carry their en-face location boxes.
type Content struct {
	PhotoLocations *[]Box `json:"photo_locations,omitempty"`
}

type Box struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BuildDocument assembles the metadata document for one group. Sections
// that describe the study as a whole take their values from the last
// instance; each instance contributes one image entry.
func BuildDocument(instances []*dcm.Instance, patientKey string, cfg config.Config, sink diag.Sink) *Document {
	doc := &Document{
		Images:        ImageSet{Images: []ImageMeta{}},
		ParserVersion: ParserVersion,
		ToolVersion:   ToolVersion,
	}

	for _, inst := range instances {
		doc.Patient = Patient{
			PatientKey:  patientKey,
			FirstName:   retained(inst.GivenName, cfg.KeepNames()),
			LastName:    retained(inst.FamilyName, cfg.KeepNames()),
			DateOfBirth: dateOfBirth(inst.BirthDate, cfg),
			Gender:      retained(inst.Sex, cfg.KeepGender()),
			SourceID:    inst.StudyUID,
		}
		doc.Exam = Exam{
			Manufacturer:           inst.Manufacturer,
			ScanDatetime:           dcm.FormatScanDatetime(inst.AcquisitionTime),
			ScannerModel:           inst.ScannerModel,
			ScannerSerialNumber:    inst.SerialNumber,
			ScannerSoftwareVersion: inst.SoftwareVersion,
			ScannerLastCalibration: "",
			SourceID:               inst.StudyUID,
		}
		doc.Series = Series{
			Laterality: inst.LateralityRaw,
			Fixation:   inst.AnatomicRegion,
			Anterior:   "",
			Protocol:   inst.SeriesDescription,
			SourceID:   inst.StudyUID,
		}
		doc.Images.Images = append(doc.Images.Images, imageMeta(inst, sink))
	}

	if len(instances) > 1 {
		doc.Series.Protocol = "OCT ART Volume"
	}
	return doc
}

func imageMeta(inst *dcm.Instance, sink diag.Sink) ImageMeta {
	meta := ImageMeta{
		Modality:    inst.Modality.Description(),
		Group:       inst.Accession,
		Size:        PixelSize{Width: inst.Columns, Height: inst.Rows},
		FieldOfView: inst.FieldOfView,
		SourceID:    fmt.Sprintf("%s-%d", inst.Modality.Code(), inst.Accession),
	}

	switch {
	case inst.Modality.Is2DImage():
		// Missing spacing degrades to zero-valued extents, keeping the
		// document shape identical across instruments.
		var row, col float64
		if len(inst.PixelSpacing) >= 2 {
			row, col = inst.PixelSpacing[0], inst.PixelSpacing[1]
		}
		meta.DimensionsMM = &Extent{
			Width:  float64(inst.Columns) * col,
			Height: float64(inst.Rows) * row,
		}
		meta.ResolutionsMM = &Extent{Width: col, Height: row}
		meta.Contents = []Content{{}}

	case inst.Modality == modality.OCT:
		if inst.Geometry.Present {
			g := inst.Geometry
			depth := float64(inst.FrameCount-1) * g.SliceThickness
			resDepth := g.SliceThickness
			meta.DimensionsMM = &Extent{
				Width:  float64(inst.Columns) * g.ColSpacing,
				Height: float64(inst.Rows) * g.RowSpacing,
				Depth:  &depth,
			}
			meta.ResolutionsMM = &Extent{Width: g.ColSpacing, Height: g.RowSpacing, Depth: &resDepth}
		}
		meta.Contents = octContents(inst, sink)
	}
	return meta
}

// octContents emits one entry per frame of a volume scan. Frames whose
// location sequence is absent still get an entry so frame indexes line up.
func octContents(inst *dcm.Instance, sink diag.Sink) []Content {
	contents := []Content{}
	if !inst.HasPerFrameGroups {
		return contents
	}
	for _, loc := range inst.FrameLocations {
		if loc == nil {
			sink.Warnf("empty photo_locations in %s", inst.SourcePath)
			contents = append(contents, Content{PhotoLocations: &[]Box{}})
			continue
		}
		boxes := []Box{{
			Start: Point{X: loc[1], Y: loc[0]},
			End:   Point{X: loc[3], Y: loc[2]},
		}}
		contents = append(contents, Content{PhotoLocations: &boxes})
	}
	return contents
}

func retained(value string, keep bool) *string {
	if !keep || value == "" {
		return nil
	}
	return &value
}

func dateOfBirth(raw string, cfg config.Config) string {
	if raw == "" {
		raw = "10010101"
	}
	dob := dcm.FormatDate(raw)
	switch {
	case cfg.KeepYearOnlyDOB():
		if len(dob) >= 4 {
			return dob[:4] + "-01-01"
		}
		return dobSentinel
	case cfg.KeepDOB():
		if dob == "" {
			return dobSentinel
		}
		return dob
	default:
		return dobSentinel
	}
}

// writeMetadata serializes the document to metadata.json with 4-space
// indentation.
func writeMetadata(dir string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644)
}
