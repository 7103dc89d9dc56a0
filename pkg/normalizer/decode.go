package normalizer

import (
	"encoding/json"
	"fmt"
)

// DecodeMeasure parses a raw portal record, failing with *MissingFieldError
// when one of the expected keys is absent.
func DecodeMeasure(data json.RawMessage) (RawMeasure, error) {
	var raw RawMeasure
	err := decodeStrict("measure", data, measureKeys, &raw)
	return raw, err
}

func DecodeThreshold(data json.RawMessage) (RawThreshold, error) {
	var raw RawThreshold
	err := decodeStrict("threshold", data, thresholdKeys, &raw)
	return raw, err
}

func DecodeMeterPoint(data json.RawMessage) (RawMeterPoint, error) {
	var raw RawMeterPoint
	err := decodeStrict("pce", data, meterPointKeys, &raw)
	return raw, err
}

func decodeStrict(record string, data json.RawMessage, keys []string, out any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode %s: %w", record, err)
	}
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return &MissingFieldError{Record: record, Field: key}
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", record, err)
	}
	return nil
}
