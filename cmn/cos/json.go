package cos

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on failure; used only for values whose shape is
// controlled by this module (never for externally supplied payloads).
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func JSONMarshal(v any) ([]byte, error)       { return json.Marshal(v) }
func JSONUnmarshal(b []byte, v any) error     { return json.Unmarshal(b, v) }
func JSONMarshalIndent(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
