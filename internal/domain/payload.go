package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Payload is the structured document handed to a task handler. Numbers are
// held as json.Number so integers beyond 2^53 keep every digit.
type Payload map[string]any

// NormalizePayload reduces v to plain maps, slices and scalars, the same
// shape a jsonb column decodes back into through DecodeJSON. Structs and
// typed collections at any depth are flattened through their JSON encoding
// and every number becomes a json.Number. A nil value yields an empty
// payload; anything that is not an object at the top level is rejected, as
// are NaN and infinite floats.
func NormalizePayload(v any) (Payload, error) {
	if v == nil {
		return Payload{}, nil
	}

	normalized, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}

	switch doc := normalized.(type) {
	case map[string]any:
		return Payload(doc), nil
	case nil:
		return Payload{}, nil
	default:
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidPayload, v)
	}
}

func normalizeValue(v any) (any, error) {
	switch value := v.(type) {
	case nil, bool, string:
		return value, nil
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("%w: non-finite number %v", ErrInvalidPayload, value)
		}
		return roundTrip(value)
	case float32:
		return normalizeValue(float64(value))
	case Payload:
		return normalizeValue(map[string]any(value))
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, elem := range value {
			n, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(value))
		for i, elem := range value {
			n, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return roundTrip(value)
	}
}

// roundTrip flattens any other value (numbers, structs, typed maps and
// slices, json.Marshaler implementations) through encoding/json.
func roundTrip(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var out any
	if err := DecodeJSON(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// DecodeJSON unmarshals a single JSON document into v, keeping numbers as
// json.Number. It is the decoder used for jsonb columns and CLI input.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}
