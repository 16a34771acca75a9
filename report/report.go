// Package report renders a match result as the two-column table shown to
// the operator.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"pacbedthickness/types"
)

// Row is one parameter/value line of the result table
type Row struct {
	Parameter string
	Value     string
}

// FormatThickness renders an estimate as "N ± E nm"
func FormatThickness(thickness, errorBand int) string {
	return fmt.Sprintf("%d ± %d nm", thickness, errorBand)
}

// Table builds the result rows. Acquisition fields that are empty are left
// out; material and thickness are always present.
func Table(result types.MatchResult, acq types.Acquisition, material string) []Row {
	var rows []Row
	add := func(name, value, unit string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if unit != "" && !strings.HasSuffix(value, unit) {
			value += " " + unit
		}
		rows = append(rows, Row{Parameter: name, Value: value})
	}

	add("Instrument", acq.Instrument, "")
	add("Accelerating Voltage", acq.Voltage, "kV")
	add("Zone Axis", zoneAxis(acq.ZoneAxis), "")
	add("Convergence Angle", acq.ConvergenceAngle, "mrad")
	rows = append(rows,
		Row{Parameter: "Material", Value: material},
		Row{Parameter: "Thickness", Value: FormatThickness(result.Thickness, result.Error)},
	)
	return rows
}

// zoneAxis brackets bare indices, "110" becomes "[110]"
func zoneAxis(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "[") {
		return v
	}
	return "[" + v + "]"
}

// Print writes rows as an aligned two-column table
func Print(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Parameter\tValue")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Parameter, r.Value)
	}
	return tw.Flush()
}
