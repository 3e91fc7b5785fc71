package cache

// EstimateSize returns the accounting size of a serialized payload in bytes.
// Sizes are always taken before compression so capacity accounting does not depend on
// how well a payload compresses.
func EstimateSize(payload []byte) int64 {
	return int64(len(payload))
}
