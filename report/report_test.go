package report

import (
	"bytes"
	"strings"
	"testing"

	"pacbedthickness/types"
)

func TestFormatThickness(t *testing.T) {
	if got := FormatThickness(42, 2); got != "42 ± 2 nm" {
		t.Fatalf("FormatThickness = %q", got)
	}
}

func TestTableFull(t *testing.T) {
	res := types.MatchResult{Thickness: 42, Error: 1}
	acq := types.Acquisition{Voltage: "300", ZoneAxis: "110", ConvergenceAngle: "20 mrad"}

	rows := Table(res, acq, "Silicon")
	want := []Row{
		{"Accelerating Voltage", "300 kV"},
		{"Zone Axis", "[110]"},
		{"Convergence Angle", "20 mrad"},
		{"Material", "Silicon"},
		{"Thickness", "42 ± 1 nm"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestTableOmitsMissing(t *testing.T) {
	rows := Table(types.MatchResult{Thickness: 7, Error: 2}, types.Acquisition{Instrument: "FEI Titan"}, "Silicon")
	if len(rows) != 3 || rows[0].Parameter != "Instrument" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	if err := Print(&buf, []Row{{"Material", "Silicon"}, {"Thickness", "42 ± 2 nm"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Thickness  42 ± 2 nm") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
