package panel

import "strconv"

// Readout produces the current text of a readout.
type Readout func() string

// Func wraps fn as a Readout. Use it to hand the panel a snapshot callable
// instead of a pointer into device state.
func Func(fn func() string) Readout {
	return Readout(fn)
}

// Text reports *s. s must outlive the panel.
func Text(s *string) Readout {
	return func() string { return *s }
}

// Bool reports trueText or falseText depending on *b. Empty labels default
// to "On" and "Off". b must outlive the panel.
func Bool(b *bool, trueText, falseText string) Readout {
	if trueText == "" {
		trueText = "On"
	}
	if falseText == "" {
		falseText = "Off"
	}
	return func() string {
		if *b {
			return trueText
		}
		return falseText
	}
}

// Int reports *n in decimal followed by unit. n must outlive the panel.
func Int(n *int, unit string) Readout {
	return func() string {
		return strconv.Itoa(*n) + unit
	}
}

// Float reports *f with one decimal place followed by unit. f must outlive
// the panel.
func Float[T float32 | float64](f *T, unit string) Readout {
	return func() string {
		return strconv.FormatFloat(float64(*f), 'f', 1, 64) + unit
	}
}
