package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
)

// Result is the normalised outcome of a call. Exactly one of Data and Error
// is meaningful, selected by OK.
type Result struct {
	OK     bool
	Status int
	Data   any
	Error  any

	// Envelope names the discriminant used when the result is encoded.
	Envelope tsemitter.Envelope
}

// MarshalJSON encodes r the way the generated response interceptor shapes
// it: {"ok":true,"status":200,"data":...} or {"ok":false,"status":404,"error":...}.
// The status is left out of an error result that never reached the server.
func (r Result) MarshalJSON() ([]byte, error) {
	key := r.Envelope
	if key == "" {
		key = tsemitter.EnvelopeOK
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "{%q:%t", string(key), r.OK)
	if r.OK || r.Status != 0 {
		fmt.Fprintf(&b, ",\"status\":%d", r.Status)
	}
	field, val := "data", r.Data
	if !r.OK {
		field, val = "error", r.Error
	}
	enc, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(&b, ",%q:%s}", field, enc)
	return b.Bytes(), nil
}

// Interceptor turns a transport outcome into a Result.
type Interceptor func(resp *Response, err error) Result

// Normalize is the default Interceptor. 2xx responses land in Data, anything
// else in Error; bodies are decoded as JSON when they parse and kept as text
// otherwise. A transport failure carries its message and no status.
func Normalize(resp *Response, err error) Result {
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	if resp == nil {
		return Result{OK: false, Error: "no response"}
	}
	body := decodeBody(resp.Body)
	if resp.Status >= 200 && resp.Status < 300 {
		return Result{OK: true, Status: resp.Status, Data: body}
	}
	return Result{OK: false, Status: resp.Status, Error: body}
}

func decodeBody(b []byte) any {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(b)
	}
	return v
}
