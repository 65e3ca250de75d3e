// Package dcm loads DICOM ophthalmic imaging files into flat instance
// records the rest of the pipeline works with. Binary parsing is delegated
// to github.com/suyashkumar/dicom.
package dcm

import (
	"github.com/suyashkumar/dicom/pkg/frame"

	"github.com/retinalab/dcmexport/internal/modality"
)

// Laterality says which eye an instance images.
type Laterality int

const (
	LateralityUnknown Laterality = iota
	LateralityLeft
	LateralityRight
)

// ParseLaterality maps the DICOM laterality value (L/R) to the enum.
func ParseLaterality(raw string) Laterality {
	switch raw {
	case "L":
		return LateralityLeft
	case "R":
		return LateralityRight
	default:
		return LateralityUnknown
	}
}

// Code returns the laterality code used in output directory names:
// OD right, OS left, OU unknown.
func (l Laterality) Code() string {
	switch l {
	case LateralityRight:
		return "OD"
	case LateralityLeft:
		return "OS"
	default:
		return "OU"
	}
}

// FrameLocation is one OCT B-scan's position on the en-face image, as read
// from the ophthalmic frame location sequence: y0, x0, y1, x1.
type FrameLocation [4]float64

// VolumeGeometry carries the pixel-measures data OCT metadata is computed
// from. Absent or malformed geometry leaves Present false and the dimension
// fields are simply omitted downstream.
type VolumeGeometry struct {
	Present        bool
	RowSpacing     float64 // mm per pixel, vertical
	ColSpacing     float64 // mm per pixel, horizontal
	SliceThickness float64 // mm between B-scans
}

// Instance is one source imaging record. It is built once by the loader and
// treated as read-only afterwards; the per-group accession disambiguation
// happens on copies scoped to a single group's export.
type Instance struct {
	SourcePath string

	Modality modality.Modality
	RawCode  string // DICOM Modality as found in the file

	PatientID        string
	FrameOfReference string
	AcquisitionTime  string // raw DICOM YYYYMMDDHHMMSS.ffffff, "" when absent
	SeriesDescription string
	Manufacturer     string
	FrameCount       int // >= 1
	Accession        int // filename disambiguator within a group
	Laterality       Laterality
	LateralityRaw    string

	// Descriptor fields serialized into metadata.json.
	StudyUID        string
	GivenName       string
	FamilyName      string
	BirthDate       string // YYYYMMDD
	Sex             string
	ScannerModel    string
	SerialNumber    string
	SoftwareVersion string
	Rows            int
	Columns         int
	PixelSpacing    []float64 // [row, col] mm, nil when absent
	FieldOfView     *float64  // HorizontalFieldOfView, nil when absent

	AnatomicRegion string

	Geometry          VolumeGeometry
	FrameLocations    []*FrameLocation // one per frame; nil entries mean absent
	HasPerFrameGroups bool

	Frames []*frame.Frame

	hasContrastAgent bool
}

// HasContrastAgent reports whether the file carried a contrast bolus agent
// sequence.
func (in *Instance) HasContrastAgent() bool { return in.hasContrastAgent }

// fieldOfView returns the FOV for classification, 0 when absent.
func (in *Instance) fieldOfView() float64 {
	if in.FieldOfView == nil {
		return 0
	}
	return *in.FieldOfView
}
