package models

import "encoding/json"

// Optional is a field that records whether it was explicitly supplied.
// encoding/json invokes UnmarshalJSON only for keys present in the payload,
// so after decoding a PATCH body, Set is true exactly for the fields the
// client sent — a JSON null arrives as Set=true with the zero Value.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns an Optional carrying v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
