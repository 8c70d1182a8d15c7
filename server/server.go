// Package server contains the JSON payload types shared by the HTTP layers.
package server

import (
	"encoding/json"
	"go/types"
	"net/http"
)

// FloatT is a struct with a single float field, {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload holds one value of a basic type and knows how to send it
type HumanPayload struct {
	// T is the kind of value held
	T types.BasicKind

	Float  float64
	Int    int
	String string
	Bool   bool
}

// value returns the payload wrapped in its single-field struct
func (hp HumanPayload) value() interface{} {
	switch hp.T {
	case types.Float64, types.Float32:
		return FloatT{F64: hp.Float}
	case types.Int:
		return IntT{Int: hp.Int}
	case types.String:
		return StrT{Str: hp.String}
	case types.Bool:
		return BoolT{Bool: hp.Bool}
	}
	return nil
}

// EncodeAndRespond writes the payload to w as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	v := hp.value()
	if v == nil {
		http.Error(w, "payload holds an unsupported type", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// WriteJSON encodes v as the body of a response with the given status
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

// ErrorT is the body of an error response
type ErrorT struct {
	Error string `json:"error"`
}

// Error replies with {"error": err} and the given status
func Error(w http.ResponseWriter, err error, code int) {
	WriteJSON(w, code, ErrorT{Error: err.Error()})
}
