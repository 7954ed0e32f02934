package errors

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ErrDataI is structured context attached to an Error, such as the stored
// state of a block that was rejected as a duplicate.
type ErrDataI interface {
	EncodeErrorData() []byte
	Error() string
	GetData(key string) interface{}
	SetData(key string, value interface{})
}

type ErrData map[string]interface{}

// Error renders the entries as key=value pairs in key order.
func (e *ErrData) Error() string {
	if e == nil || len(*e) == 0 {
		return ""
	}

	keys := make([]string, 0, len(*e))
	for key := range *e {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", key, (*e)[key])
	}

	return strings.Join(pairs, " ")
}

func (e *ErrData) SetData(key string, value interface{}) {
	if e == nil {
		return
	}

	if *e == nil {
		*e = ErrData{}
	}

	(*e)[key] = value
}

func (e *ErrData) GetData(key string) interface{} {
	if e == nil {
		return nil
	}

	return (*e)[key]
}

// EncodeErrorData returns the JSON encoding of the entries, or nil when a
// value cannot be encoded.
func (e *ErrData) EncodeErrorData() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}

	return data
}

// GetErrorData decodes data produced by EncodeErrorData. Numbers decode as
// float64.
func GetErrorData(dataBytes []byte) (ErrDataI, error) {
	errData := &ErrData{}

	if err := json.Unmarshal(dataBytes, errData); err != nil {
		return errData, err
	}

	return errData, nil
}
