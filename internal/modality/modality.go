// Package modality defines the canonical ophthalmic imaging modalities and
// the classification of raw DICOM instances into them.
package modality

// Flag is a capability bit attached to a modality.
type Flag uint8

const (
	// IsColour marks modalities whose pixel data carries colour.
	IsColour Flag = 1 << iota
	// Is2DImage marks modalities producing a single 2D fundus-style image.
	Is2DImage
	// IsAnterior marks exterior/anterior-segment captures.
	IsAnterior
	// IsInterior marks interior (retinal) captures.
	IsInterior
	// Sensitive marks modalities that may contain identifying data,
	// e.g. face photos or embedded report text.
	Sensitive
)

// Modality is a closed enumeration of the imaging modalities this tool
// understands. Each variant carries an immutable short code, display text
// and capability flags; compare values with ==, never by code string.
type Modality int

const (
	Unknown Modality = iota
	ColourPhoto
	InfraredPhoto
	SLORed
	SLOGreen
	SLOBlue
	SLOInfrared
	SLOInfraredXP
	FluoresceinAngiography
	ICGA
	RedFree
	RedFreeXP
	FAICGA
	AutofluorescenceBlue
	AutofluorescenceGreen
	AutofluorescenceIR
	ReflectanceRed
	ReflectanceGreen
	ReflectanceBlue
	ReflectanceBlueXP
	ReflectanceIR
	ReflectanceMColor
	OCT
	CorneaMicroscopy
	MPOD
	HRTomography
	SlitLamp
	Red
	FacePhoto
	PseudocolourUltraWidefield
	OptosFA
	FDF
	SAP
	MPODResult
	Thickness
	CellAnalysis
	EncapsulatedPDF
)

type descriptor struct {
	code        string
	description string
	flags       Flag
}

var table = map[Modality]descriptor{
	Unknown:                    {"U", "Unknown", Sensitive},
	ColourPhoto:                {"CP", "Colour Photo", Is2DImage | IsColour},
	InfraredPhoto:              {"IRP", "Infrared Photo", Is2DImage},
	SLORed:                     {"SLO_R", "SLO - Red", Is2DImage | IsInterior},
	SLOGreen:                   {"SLO_G", "SLO - Green", Is2DImage | IsInterior},
	SLOBlue:                    {"SLO_B", "SLO - Blue", Is2DImage | IsInterior},
	SLOInfrared:                {"SLO_IR", "SLO - Infrared", Is2DImage | IsInterior},
	SLOInfraredXP:              {"SLO_IR_XP", "SLO - Infrared (cross-polarized)", Is2DImage | IsInterior},
	FluoresceinAngiography:     {"FA", "FA", Is2DImage | IsInterior},
	ICGA:                       {"ICGA", "ICGA", Is2DImage | IsInterior},
	RedFree:                    {"RF", "Red-free", Is2DImage | IsInterior},
	RedFreeXP:                  {"RF_XP", "Red-free (cross-polarized)", Is2DImage | IsInterior},
	FAICGA:                     {"FA+ICGA", "FA+ICGA", Is2DImage | IsInterior},
	AutofluorescenceBlue:       {"AF_B", "AF - Blue", Is2DImage | IsInterior},
	AutofluorescenceGreen:      {"AF_G", "AF - Green", Is2DImage | IsInterior},
	AutofluorescenceIR:         {"AF_IR", "AF - Infrared", Is2DImage | IsInterior},
	ReflectanceRed:             {"REF_R", "Reflectance - Red", Is2DImage},
	ReflectanceGreen:           {"REF_G", "Reflectance - Green", Is2DImage},
	ReflectanceBlue:            {"REF_B", "Reflectance - Blue", Is2DImage},
	ReflectanceBlueXP:          {"REF_B_XP", "Reflectance - Blue (cross-polarized)", Is2DImage},
	ReflectanceIR:              {"REF_IR", "Reflectance - Infrared", Is2DImage},
	ReflectanceMColor:          {"MCR", "Multi Color Reflectance - RGB", Is2DImage},
	OCT:                        {"OCT", "OCT", 0},
	CorneaMicroscopy:           {"CM", "Cornea Microscopy", 0},
	MPOD:                       {"MPOD", "MP Optical Density", 0},
	HRTomography:               {"HRT", "HR Tomography", 0},
	SlitLamp:                   {"SLIT", "Slit Lamp", Is2DImage | IsAnterior},
	Red:                        {"RED", "Red", Is2DImage | IsInterior},
	FacePhoto:                  {"FACE", "Face photo", Is2DImage | IsAnterior | Sensitive},
	PseudocolourUltraWidefield: {"PCUWF", "Pseudocolour Ultra-widefield", Is2DImage | IsInterior | IsColour},
	OptosFA:                    {"OPTOS_FA", "Optos Ultra-Widefield FA", Is2DImage | IsInterior},
	FDF:                        {"FDF", "Flicker Defined Form Perimetry", 0},
	SAP:                        {"SAP", "Standard Automated Perimetry", 0},
	MPODResult:                 {"MPODR", "MP Optical Density Result", 0},
	Thickness:                  {"T", "Thickness", 0},
	CellAnalysis:               {"CELL", "Cell Analysis", 0},
	EncapsulatedPDF:            {"PDF", "PDF", Sensitive},
}

// Code returns the short modality code used in filenames and directory names.
func (m Modality) Code() string {
	if d, ok := table[m]; ok {
		return d.code
	}
	return table[Unknown].code
}

// Description returns the human-readable label written to metadata.json.
func (m Modality) Description() string {
	if d, ok := table[m]; ok {
		return d.description
	}
	return table[Unknown].description
}

func (m Modality) String() string { return m.Description() }

// Flags returns the capability bits for this modality.
func (m Modality) Flags() Flag {
	return table[m].flags
}

// IsColour reports whether this modality contains colour data.
func (m Modality) IsColour() bool { return m.Flags()&IsColour != 0 }

// Is2DImage reports whether this modality contains flat 2D image data.
func (m Modality) Is2DImage() bool { return m.Flags()&Is2DImage != 0 }

// IsSensitive reports whether this modality may contain sensitive data.
func (m Modality) IsSensitive() bool { return m.Flags()&Sensitive != 0 }

// All returns every known modality in declaration order.
func All() []Modality {
	out := make([]Modality, 0, len(table))
	for m := Unknown; m <= EncapsulatedPDF; m++ {
		out = append(out, m)
	}
	return out
}
