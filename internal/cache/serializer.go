package cache

import (
	"encoding/json"
	"fmt"
)

// Serializer converts cached values to and from bytes. Every value type the cache holds
// must round-trip through its Serializer.
type Serializer[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// JSONSerializer encodes values with encoding/json.
type JSONSerializer[T any] struct{}

func (JSONSerializer[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer[T]) Unmarshal(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: json: %v", ErrCorruptPayload, err)
	}
	return v, nil
}

// BytesSerializer stores byte slices as-is.
type BytesSerializer struct{}

func (BytesSerializer) Marshal(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

func (BytesSerializer) Unmarshal(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
