package metric

import (
	"strconv"
)

// Kind is the variant of a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Unit is the measurement unit attached to numeric values.
type Unit string

const (
	UnitNone    Unit = ""
	UnitPercent Unit = "%"
	UnitMiB     Unit = "MiB"
	UnitCelsius Unit = "°C"
	UnitRPM     Unit = "RPM"
	UnitWatt    Unit = "W"
	UnitMHz     Unit = "MHz"
)

// Value is a single observed metric value for one device: either a number
// with a unit or a plain string.
type Value struct {
	Kind   Kind
	Number float64
	Unit   Unit
	Text   string
}

// Number returns a numeric Value.
func Number(v float64, unit Unit) Value {
	return Value{Kind: KindNumber, Number: v, Unit: unit}
}

// Text returns a string Value.
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// IsNumber reports whether v holds the numeric variant.
func (v Value) IsNumber() bool {
	return v.Kind == KindNumber
}

func (v Value) String() string {
	if v.Kind == KindText {
		return v.Text
	}

	n := strconv.FormatFloat(v.Number, 'f', -1, 64)
	switch v.Unit {
	case UnitNone:
		return n
	case UnitPercent, UnitCelsius:
		return n + string(v.Unit)
	default:
		return n + " " + string(v.Unit)
	}
}
