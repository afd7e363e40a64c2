package httpx

import (
	"encoding/json"
	"errors"
)

// Result is what a read handler produces: a success flag and the
// payload to serve. Only successful results are ever written to the
// cache; a failed result is passed through untouched.
type Result struct {
	OK      bool
	Payload any
}

func OKResult(payload any) Result { return Result{OK: true, Payload: payload} }

func FailedResult(payload any) Result { return Result{Payload: payload} }

// envelope is the stored form of a Result. The field names match the
// response body shape handlers serve, so cached bytes round-trip
// through the wire format unchanged.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func encodeResult(res Result) ([]byte, error) {
	data, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Success: res.OK, Data: data})
}

// decodeResult rebuilds a Result from stored bytes. On a cache hit the
// payload comes back as json.RawMessage.
func decodeResult(raw []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, err
	}
	if !env.Success {
		return Result{}, errors.New("stored entry is not a successful result")
	}
	return Result{OK: true, Payload: env.Data}, nil
}
