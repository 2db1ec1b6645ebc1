package posepkt

import (
	"fmt"
	"math"
	"strconv"
)

// JSONFloat is a float32 that survives encoding/json when it is not finite.
// Finite values encode as numbers; NaN and ±Inf encode as the strings "NaN",
// "+Inf" and "-Inf", which is also what UnmarshalJSON accepts back.
type JSONFloat float32

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 32), nil
}

func (f *JSONFloat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		return nil
	case `"NaN"`:
		*f = JSONFloat(math.NaN())
		return nil
	case `"+Inf"`:
		*f = JSONFloat(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = JSONFloat(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 32)
	if err != nil {
		return fmt.Errorf("posepkt: bad float %s", b)
	}
	*f = JSONFloat(v)
	return nil
}
