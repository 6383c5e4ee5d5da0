package orathin

import (
	gojson "github.com/goccy/go-json"

	"github.com/orathin/orathin/oson"
)

// Json wraps a DB_TYPE_JSON value. Value holds the decoded Go tree
// (map[string]interface{}, []interface{}, scalars).
type Json struct {
	Value interface{}
}

// NewJson parses JSON text into a bindable value.
func NewJson(input string) (*Json, error) {
	j := new(Json)
	if err := gojson.Unmarshal([]byte(input), &j.Value); err != nil {
		return nil, err
	}
	return j, nil
}

// NewJsonFromValue wraps an already-built Go tree.
func NewJsonFromValue(value interface{}) *Json {
	return &Json{Value: value}
}

func (j *Json) encode() ([]byte, error) {
	return oson.Encode(j.Value)
}

func (j *Json) decode(data []byte) error {
	value, err := oson.Decode(data)
	if err != nil {
		return err
	}
	j.Value = value
	return nil
}

// String renders the value back as JSON text.
func (j *Json) String() (string, error) {
	data, err := gojson.Marshal(j.Value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (j Json) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(j.Value)
}

func (j *Json) UnmarshalJSON(data []byte) error {
	return gojson.Unmarshal(data, &j.Value)
}

func (j *Json) Scan(input interface{}) error {
	switch value := input.(type) {
	case nil:
		j.Value = nil
		return nil
	case Json:
		*j = value
		return nil
	case *Json:
		*j = *value
		return nil
	case []byte:
		return j.decode(value)
	case string:
		tmp, err := NewJson(value)
		if err != nil {
			return err
		}
		*j = *tmp
		return nil
	default:
		j.Value = value
		return nil
	}
}
