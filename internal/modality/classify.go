package modality

import "strings"

// Attributes are the raw instance fields consulted during classification.
type Attributes struct {
	RawCode           string  // DICOM Modality code as read from the file
	Manufacturer      string
	SeriesDescription string
	FieldOfView       float64 // HorizontalFieldOfView, degrees; 0 when absent
	HasContrastAgent  bool    // ContrastBolusAgentSequence present
}

// optosWidefieldFOV is the horizontal field of view, in degrees, at which an
// OPTOS capture is an ultra-widefield image.
const optosWidefieldFOV = 200

// Classify maps raw instance attributes to a canonical modality. The second
// return is false when the raw code is not a recognised ophthalmic device
// code ("OP" or "OPT"); such instances are excluded from all further
// processing. The cascade is ordered and the first match wins.
func Classify(a Attributes) (Modality, bool) {
	switch a.RawCode {
	case "OPT":
		return OCT, true
	case "OP":
		return classifyOP(a), true
	default:
		return Unknown, false
	}
}

func classifyOP(a Attributes) Modality {
	manufacturer := strings.ToUpper(a.Manufacturer)
	switch {
	case manufacturer == "TOPCON":
		return ColourPhoto
	case manufacturer == "OPTOS" && a.FieldOfView == optosWidefieldFOV:
		// An OPTOS FA series is only the ultra-widefield angiography
		// variant when a contrast agent was actually recorded; without
		// the sequence the series falls through the normal cascade.
		if strings.Contains(a.SeriesDescription, " FA ") && a.HasContrastAgent {
			return OptosFA
		}
		return PseudocolourUltraWidefield
	// no trailing space: Heidelberg en-face descriptions end in " IR"
	case strings.Contains(a.SeriesDescription, " IR"):
		return SLOInfrared
	case strings.Contains(a.SeriesDescription, " BAF "):
		return AutofluorescenceBlue
	case strings.Contains(a.SeriesDescription, " ICGA "):
		return ICGA
	case strings.Contains(a.SeriesDescription, " FA&ICGA "):
		return FAICGA
	case strings.Contains(a.SeriesDescription, " FA "):
		return FluoresceinAngiography
	case strings.Contains(a.SeriesDescription, " RF "):
		return RedFree
	case strings.Contains(a.SeriesDescription, " BR "):
		return ReflectanceBlue
	case strings.Contains(a.SeriesDescription, " MColor "):
		return ReflectanceMColor
	default:
		return Unknown
	}
}
