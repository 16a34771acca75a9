package imageprocessor

import (
	"fmt"
	"strings"

	"pacbedthickness/logging"
	"pacbedthickness/types"

	"github.com/barasher/go-exiftool"
)

// Tags checked for the accelerating voltage, in order of preference
var voltageTags = []string{"AcceleratingVoltage", "HighTension", "Voltage"}

// ReadAcquisition extracts microscope parameters embedded in the query file.
// Missing tags leave fields empty; an error means exiftool itself failed.
func ReadAcquisition(path string) (types.Acquisition, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return types.Acquisition{}, fmt.Errorf("initialize exiftool: %w", err)
	}
	defer et.Close()

	infos := et.ExtractMetadata(path)
	if len(infos) == 0 {
		return types.Acquisition{}, fmt.Errorf("no metadata extracted from %s", path)
	}
	info := infos[0]
	if info.Err != nil {
		return types.Acquisition{}, info.Err
	}

	var acq types.Acquisition

	var parts []string
	for _, tag := range []string{"Make", "Model"} {
		if v, err := info.GetString(tag); err == nil && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	acq.Instrument = strings.Join(parts, " ")

	for _, tag := range voltageTags {
		if v, err := info.GetFloat(tag); err == nil && v > 0 {
			// some writers store volts, the report wants kV
			if v >= 1000 {
				v /= 1000
			}
			acq.Voltage = fmt.Sprintf("%g", v)
			break
		}
	}

	logging.DebugLog("Acquisition metadata for %s: %+v", path, acq)
	return acq, nil
}
