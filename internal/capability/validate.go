package capability

import (
	"fmt"
	"math"
)

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("field %s is not a finite number", name)
	}
	return nil
}

func required(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s", errMissingField, name)
	}
	if err := finite(name, *v); err != nil {
		return 0, err
	}
	return *v, nil
}

func optional(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if err := finite(name, *v); err != nil {
		return 0, err
	}
	return *v, nil
}
