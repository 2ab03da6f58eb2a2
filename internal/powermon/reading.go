package powermon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/guregu/null"
)

var ErrMalformedLine = errors.New("malformed line")

// Reading is one parsed line from the receiver. Fields holds the decoded
// object with numbers kept as json.Number.
type Reading struct {
	Fields map[string]interface{}
	raw    []byte
}

// Values is the typed view of the metrics a reading is expected to carry.
// Fields that are missing or not numeric are left invalid.
type Values struct {
	Sensor        null.String
	PrintDeltaMs  null.Float
	TotalEnergyWh null.Float
	PowerW        null.Float
	TempC         null.Float
}

// Sanitize turns the sketch's single quoted output into JSON. It assumes
// values never contain a quote of their own.
func Sanitize(line string) string {
	return strings.ReplaceAll(strings.TrimRight(line, " \t\r\n"), "'", `"`)
}

func ParseLine(line string) (Reading, error) {
	sanitized := []byte(Sanitize(line))
	if !json.Valid(sanitized) {
		return Reading{}, fmt.Errorf("%w: invalid json %q", ErrMalformedLine, sanitized)
	}
	decoder := json.NewDecoder(bytes.NewReader(sanitized))
	decoder.UseNumber()
	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil {
		return Reading{}, fmt.Errorf("%w: %s", ErrMalformedLine, err)
	}
	if fields == nil {
		return Reading{}, fmt.Errorf("%w: not an object", ErrMalformedLine)
	}
	reading := Reading{Fields: fields}
	if utf8.Valid(sanitized) && !hasDuplicateKeys(sanitized) {
		var compacted bytes.Buffer
		if err := json.Compact(&compacted, sanitized); err != nil {
			return Reading{}, fmt.Errorf("%w: %s", ErrMalformedLine, err)
		}
		reading.raw = compacted.Bytes()
	}
	return reading, nil
}

// hasDuplicateKeys reports whether any object in data repeats a key. Such
// text decodes to fewer fields than it shows, so it cannot be republished
// as is.
func hasDuplicateKeys(data []byte) bool {
	type frame struct {
		keys      map[string]bool
		expectKey bool
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var stack []*frame
	for {
		token, err := decoder.Token()
		if err != nil {
			return false
		}
		var top *frame
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		if top != nil && top.keys != nil && top.expectKey {
			if key, ok := token.(string); ok {
				if top.keys[key] {
					return true
				}
				top.keys[key] = true
				top.expectKey = false
				continue
			}
		}
		switch token {
		case json.Delim('{'):
			stack = append(stack, &frame{keys: map[string]bool{}, expectKey: true})
		case json.Delim('['):
			stack = append(stack, &frame{})
		case json.Delim('}'), json.Delim(']'):
			stack = stack[:len(stack)-1]
			if len(stack) > 0 && stack[len(stack)-1].keys != nil {
				stack[len(stack)-1].expectKey = true
			}
		default:
			if top != nil && top.keys != nil {
				top.expectKey = true
			}
		}
	}
}

// MarshalJSON keeps the key order and number formatting of the received line
// when that text matches the decoded fields, and encodes Fields otherwise.
func (r Reading) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return json.Marshal(r.Fields)
	}
	out := make([]byte, len(r.raw))
	copy(out, r.raw)
	return out, nil
}

func (r Reading) SensorID() (string, bool) {
	switch value := r.Fields[SensorField].(type) {
	case string:
		return value, value != ""
	case json.Number:
		return value.String(), true
	default:
		return "", false
	}
}

func (r Reading) Value(name string) null.Float {
	number, ok := r.Fields[name].(json.Number)
	if !ok {
		return null.Float{}
	}
	value, err := number.Float64()
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(value)
}

func (r Reading) Values() Values {
	values := Values{
		PrintDeltaMs:  r.Value("PrintDelta_ms"),
		TotalEnergyWh: r.Value("Total_Energy_Wh"),
		PowerW:        r.Value("Power_W"),
		TempC:         r.Value("Temp_C"),
	}
	if sensor, ok := r.SensorID(); ok {
		values.Sensor = null.StringFrom(sensor)
	}
	return values
}
