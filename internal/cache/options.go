package cache

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/blogcache/internal/kvstore"
)

type options struct {
	backend    kvstore.Backend
	codec      Codec
	serializer any
	clock      clock.Clock
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*options)

// WithBackend sets the durable backend. Without one the manager is memory-only. The
// manager never closes the backend; its owner does.
func WithBackend(b kvstore.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCodec replaces the brotli codec.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithSerializer sets how values are turned into bytes. The type parameter must match
// the manager's; New panics otherwise. Defaults to JSONSerializer.
func WithSerializer[T any](s Serializer[T]) Option {
	return func(o *options) { o.serializer = s }
}

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
