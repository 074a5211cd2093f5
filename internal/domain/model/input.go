package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StartupIdeaKey is the only required input field.
const StartupIdeaKey = "startup_idea"

var (
	// ErrStartupIdeaRequired is returned when the input has no usable startup idea.
	ErrStartupIdeaRequired = errors.New("startup_idea is required and cannot be empty")
	// ErrInputDataRequired is returned when input_data is absent from the request.
	ErrInputDataRequired = errors.New("input_data is required")
)

// InputData holds the caller-supplied evaluation inputs keyed by field name.
type InputData map[string]string

// StartupIdea returns the trimmed idea text.
func (d InputData) StartupIdea() string {
	return strings.TrimSpace(d[StartupIdeaKey])
}

// Validate checks that the startup idea is present and at most maxLen runes long.
// A non-positive maxLen disables the length check.
func (d InputData) Validate(maxLen int) error {
	idea := d.StartupIdea()
	if idea == "" {
		return ErrStartupIdeaRequired
	}
	if maxLen > 0 && len([]rune(idea)) > maxLen {
		return fmt.Errorf("startup_idea cannot exceed %d characters", maxLen)
	}
	return nil
}

// Clone returns a copy of the input map.
func (d InputData) Clone() InputData {
	if d == nil {
		return nil
	}
	cp := make(InputData, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

// Hash returns the hex sha256 of the canonical JSON encoding of the input.
// encoding/json sorts map keys, which makes the encoding stable.
func (d InputData) Hash() string {
	b, err := json.Marshal(map[string]string(d))
	if err != nil {
		// A map[string]string always encodes.
		b = nil
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// inputPair is the key/value list element accepted for input_data.
type inputPair struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ParseInputData decodes input_data in either of its accepted shapes:
//
//	{"startup_idea": "..."}
//	[{"key": "startup_idea", "value": "..."}]
//
// Non-string values are rejected for the startup idea and kept as compact JSON otherwise.
func ParseInputData(raw json.RawMessage) (InputData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrInputDataRequired
	}

	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("input_data must be a JSON object: %w", err)
		}
		return fromValues(obj)
	case '[':
		var pairs []inputPair
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("input_data must be a list of key/value pairs: %w", err)
		}
		obj := make(map[string]any, len(pairs))
		for _, p := range pairs {
			key := strings.TrimSpace(p.Key)
			if key == "" {
				return nil, errors.New("input_data key cannot be empty")
			}
			obj[key] = p.Value
		}
		return fromValues(obj)
	default:
		return nil, errors.New("input_data must be a JSON object or a list of key/value pairs")
	}
}

func fromValues(obj map[string]any) (InputData, error) {
	out := make(InputData, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			if k == StartupIdeaKey {
				return nil, ErrStartupIdeaRequired
			}
		default:
			if k == StartupIdeaKey {
				return nil, errors.New("startup_idea must be a string")
			}
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encode input_data field %q: %w", k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}
