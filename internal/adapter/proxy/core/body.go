package core

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/thushan/llamatap/internal/core/domain"
)

// ValidTemperature accepts only finite, non-negative numbers
func ValidTemperature(v gjson.Result) bool {
	if v.Type != gjson.Number {
		return false
	}
	f := v.Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// RewriteBody points the body at the upstream model name and settles the temperature:
// a valid client value is kept, otherwise the model default is used, otherwise the field is dropped.
// Every other field is left byte-for-byte as the client sent it.
func RewriteBody(body []byte, spec domain.ModelSpec) ([]byte, error) {
	out, err := sjson.SetBytes(body, "model", spec.ModelName)
	if err != nil {
		return nil, fmt.Errorf("rewrite model: %w", err)
	}

	temp := gjson.GetBytes(out, "temperature")
	switch {
	case ValidTemperature(temp):
		return out, nil
	case spec.HasTemperature():
		out, err = sjson.SetBytes(out, "temperature", *spec.Temperature)
	case temp.Exists():
		out, err = sjson.DeleteBytes(out, "temperature")
	}
	if err != nil {
		return nil, fmt.Errorf("rewrite temperature: %w", err)
	}
	return out, nil
}
