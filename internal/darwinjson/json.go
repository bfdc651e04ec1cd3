// Package darwinjson centralizes JSON encode/decode behind sonic,
// the fast JSON backend the teacher's own jsonutil package prefers
// whenever it is available, instead of scattering encoding/json calls
// (and their reflection overhead) across the hot per-entry task path.
package darwinjson

import (
	"github.com/bytedance/sonic"
)

var api = sonic.ConfigFastest

// Marshal serializes v to JSON.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// MarshalIndent serializes v with the given prefix/indent.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}
