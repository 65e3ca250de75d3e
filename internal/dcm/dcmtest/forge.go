// Package dcmtest forges small synthetic ophthalmic DICOM files so tests
// have real inputs without shipping clinical data.
package dcmtest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SOP class UIDs for ophthalmic photography and tomography images.
const (
	sopClassOP  = "1.2.840.10008.5.1.4.1.1.77.1.5.1"
	sopClassOPT = "1.2.840.10008.5.1.4.1.1.77.1.5.4"
)

// Options describes one synthetic instance. Zero values get sensible
// defaults from Apply.
type Options struct {
	Modality          string // raw code, default "OP"
	Manufacturer      string
	SeriesDescription string
	PatientID         string
	PatientName       string // DICOM PN, family^given
	BirthDate         string // YYYYMMDD
	Sex               string
	StudyUID          string
	FrameOfReference  string
	AcquisitionTime   string // YYYYMMDDHHMMSS.ffffff
	Laterality        string // "L" or "R"
	Rows              int
	Cols              int
	NumFrames         int
	PixelSpacing      []string // DS pair, row\col
	FieldOfView       *float64
	WithContrast      bool
	SharedGeometry    bool   // emit shared functional groups with pixel measures
	PerFrameGeometry  bool   // emit pixel measures per frame instead (OPTOPOL style)
	SliceThickness    string // DS, only with geometry
	FrameLocations    bool   // emit ophthalmic frame locations per frame
	Seed              uint8  // varies pixel content
}

func (o *Options) apply() {
	if o.Modality == "" {
		o.Modality = "OP"
	}
	if o.PatientID == "" {
		o.PatientID = "patient-001"
	}
	if o.StudyUID == "" {
		o.StudyUID = "1.2.826.0.1.3680043.2.1"
	}
	if o.Rows == 0 {
		o.Rows = 8
	}
	if o.Cols == 0 {
		o.Cols = 8
	}
	if o.NumFrames == 0 {
		o.NumFrames = 1
	}
	if o.BirthDate == "" {
		o.BirthDate = "19800102"
	}
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// Dataset builds the DICOM dataset for the given options.
func Dataset(opts Options) dicom.Dataset {
	opts.apply()

	sopClass := sopClassOP
	if opts.Modality == "OPT" {
		sopClass = sopClassOPT
	}

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{sopClass}),
		mustNewElement(tag.SOPInstanceUID, []string{opts.StudyUID + "." + fmt.Sprint(opts.Seed)}),
		mustNewElement(tag.Modality, []string{opts.Modality}),
		mustNewElement(tag.PatientID, []string{opts.PatientID}),
		mustNewElement(tag.PatientBirthDate, []string{opts.BirthDate}),
		mustNewElement(tag.StudyInstanceUID, []string{opts.StudyUID}),
		mustNewElement(tag.Rows, []int{opts.Rows}),
		mustNewElement(tag.Columns, []int{opts.Cols}),
		mustNewElement(tag.BitsAllocated, []int{8}),
		mustNewElement(tag.BitsStored, []int{8}),
		mustNewElement(tag.HighBit, []int{7}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.NumberOfFrames, []string{fmt.Sprint(opts.NumFrames)}),
	}

	addString := func(t tag.Tag, v string) {
		if v != "" {
			elements = append(elements, mustNewElement(t, []string{v}))
		}
	}
	addString(tag.PatientName, opts.PatientName)
	addString(tag.PatientSex, opts.Sex)
	addString(tag.Manufacturer, opts.Manufacturer)
	addString(tag.SeriesDescription, opts.SeriesDescription)
	addString(tag.FrameOfReferenceUID, opts.FrameOfReference)
	addString(tag.AcquisitionDateTime, opts.AcquisitionTime)
	addString(tag.ImageLaterality, opts.Laterality)

	if len(opts.PixelSpacing) == 2 {
		elements = append(elements, mustNewElement(tag.PixelSpacing, opts.PixelSpacing))
	}
	if opts.FieldOfView != nil {
		elements = append(elements, mustNewElement(tag.HorizontalFieldOfView, []float64{*opts.FieldOfView}))
	}
	if opts.WithContrast {
		elements = append(elements, mustNewElement(tag.ContrastBolusAgentSequence, [][]*dicom.Element{
			{mustNewElement(tag.ContrastBolusAgent, []string{"FLUORESCEIN"})},
		}))
	}

	if opts.SharedGeometry {
		elements = append(elements, mustNewElement(tag.SharedFunctionalGroupsSequence, [][]*dicom.Element{
			{pixelMeasures(opts)},
		}))
	}
	if perFrame := perFrameGroups(opts); perFrame != nil {
		elements = append(elements, perFrame)
	}

	elements = append(elements, mustNewElement(tag.PixelData, pixelData(opts)))
	return dicom.Dataset{Elements: elements}
}

func pixelMeasures(opts Options) *dicom.Element {
	item := []*dicom.Element{}
	if len(opts.PixelSpacing) == 2 {
		item = append(item, mustNewElement(tag.PixelSpacing, opts.PixelSpacing))
	} else {
		item = append(item, mustNewElement(tag.PixelSpacing, []string{"0.011628", "0.003872"}))
	}
	if opts.SliceThickness != "" {
		item = append(item, mustNewElement(tag.SliceThickness, []string{opts.SliceThickness}))
	}
	return mustNewElement(tag.PixelMeasuresSequence, [][]*dicom.Element{item})
}

func perFrameGroups(opts Options) *dicom.Element {
	if !opts.PerFrameGeometry && !opts.FrameLocations {
		return nil
	}
	items := make([][]*dicom.Element, opts.NumFrames)
	for i := range items {
		var item []*dicom.Element
		if opts.PerFrameGeometry {
			item = append(item, pixelMeasures(opts))
		}
		if opts.FrameLocations {
			item = append(item, mustNewElement(tag.OphthalmicFrameLocationSequence, [][]*dicom.Element{
				{mustNewElement(tag.ReferenceCoordinates, []float64{640, 128, 640, 640})},
			}))
		}
		items[i] = item
	}
	return mustNewElement(tag.PerFrameFunctionalGroupsSequence, items)
}

func pixelData(opts Options) dicom.PixelDataInfo {
	frames := make([]*frame.Frame, opts.NumFrames)
	for n := 0; n < opts.NumFrames; n++ {
		native := frame.NewNativeFrame[uint8](8, opts.Rows, opts.Cols, opts.Rows*opts.Cols, 1)
		for y := 0; y < opts.Rows; y++ {
			for x := 0; x < opts.Cols; x++ {
				native.RawData[y*opts.Cols+x] = uint8(x*16+y*8+n) + opts.Seed
			}
		}
		frames[n] = &frame.Frame{Encapsulated: false, NativeData: native}
	}
	return dicom.PixelDataInfo{Frames: frames}
}

// Write forges one instance at path, creating parent directories.
func Write(path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := dicom.Write(f, Dataset(opts)); err != nil {
		return fmt.Errorf("write %s: %v", path, err)
	}
	return nil
}

// WriteFile is Write for tests that want failures to be fatal.
func WriteFile(t testing.TB, path string, opts Options) {
	t.Helper()
	if err := Write(path, opts); err != nil {
		t.Fatal(err)
	}
}
