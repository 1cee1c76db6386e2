package codec

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
)

// UsageError is a call-sequence violation against the Serializer or
// Deserializer stack: ending a container that is not on top, writing a bare
// value into a map, reading a map value with no key. It signals a
// protocol-shape or version mismatch and is fatal for the current message.
type UsageError struct {
	Op     string
	Detail string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Op, e.Detail)
}

func (e *UsageError) Unwrap() error { return protocol.ErrUsageFault }

func usage(op, format string, args ...any) *UsageError {
	return &UsageError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func mismatch(op string, want NodeKind, got NodeKind) error {
	return errors.Wrapf(protocol.ErrTypeMismatch, "codec: %s: want %s, got %s", op, want, got)
}

// IsUsageError reports whether err is, or wraps, a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
