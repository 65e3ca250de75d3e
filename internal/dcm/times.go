package dcm

import "time"

// dicomDateTime is the layout of AcquisitionDateTime values. time.Parse
// accepts an optional fractional second after the seconds field, which
// covers both YYYYMMDDHHMMSS and YYYYMMDDHHMMSS.ffffff inputs.
const dicomDateTime = "20060102150405"

// dicomDate is the layout of date-only values such as PatientBirthDate.
const dicomDate = "20060102"

// ParseTimestamp parses a DICOM datetime string.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(dicomDateTime, s)
}

// FormatScanDatetime reformats a DICOM datetime for metadata.json
// (YYYY-MM-DD HH:MM:SS). Unparseable input yields "".
func FormatScanDatetime(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDate reformats a DICOM date (YYYYMMDD) as YYYY-MM-DD, "" on failure.
func FormatDate(s string) string {
	t, err := time.Parse(dicomDate, s)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// DateTag renders a DICOM datetime as the compact tag used in output
// directory names, "" on failure.
func DateTag(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return ""
	}
	return t.Format(dicomDateTime)
}
