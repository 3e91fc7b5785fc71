package cache

import (
	"bytes"
	"errors"
	"testing"
)

func TestBrotliCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte{}},
		{"short text", []byte("hello")},
		{"repetitive", bytes.Repeat([]byte("blog post body "), 500)},
		{"binary", []byte{0, 1, 2, 255, 254, 0, 0, 7}},
	}

	codec := BrotliCodec{Quality: 5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := codec.Compress(tt.input)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			out, err := codec.Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, tt.input) {
				t.Errorf("Round trip mismatch: got %d bytes, want %d", len(out), len(tt.input))
			}
		})
	}
}

func TestBrotliCodec_Shrinks(t *testing.T) {
	input := bytes.Repeat([]byte("abcdefgh"), 1000)
	packed, err := DefaultCodec.Compress(input)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(packed) >= len(input) {
		t.Errorf("Expected compression to shrink %d bytes, got %d", len(input), len(packed))
	}
}

func TestBrotliCodec_MalformedInput(t *testing.T) {
	packed, err := DefaultCodec.Compress(bytes.Repeat([]byte("z"), 4096))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte{}},
		{"truncated", packed[:len(packed)/2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultCodec.Decompress(tt.input)
			if !errors.Is(err, ErrCorruptPayload) {
				t.Errorf("Expected ErrCorruptPayload, got %v", err)
			}
		})
	}
}

func TestNopCodec(t *testing.T) {
	in := []byte("unchanged")
	packed, _ := NopCodec{}.Compress(in)
	out, _ := NopCodec{}.Decompress(packed)
	if string(out) != "unchanged" {
		t.Errorf("Expected unchanged, got %s", out)
	}
}

func TestJSONSerializer(t *testing.T) {
	type post struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	ser := JSONSerializer[post]{}

	raw, err := ser.Marshal(post{Title: "Hello", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := ser.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Title != "Hello" || len(got.Tags) != 1 {
		t.Errorf("Unexpected value %+v", got)
	}

	if _, err := ser.Unmarshal([]byte("{broken")); !errors.Is(err, ErrCorruptPayload) {
		t.Errorf("Expected ErrCorruptPayload, got %v", err)
	}
}

func TestEstimateSize(t *testing.T) {
	if got := EstimateSize([]byte("12345")); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if got := EstimateSize(nil); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}
