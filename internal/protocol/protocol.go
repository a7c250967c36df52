package protocol

import (
	"context"
	"time"

	"github.com/heliolux/helio-core/internal/device"
)

// Client is the uniform contract every protocol implementation satisfies.
//
// Connect is idempotent: calling it on a connected client is a no-op.
// Disconnect releases resources and never fails; calling it on a
// disconnected client is a no-op. Read and write operations fail fast
// with ErrConnection when the client is not connected rather than
// auto-connecting.
type Client interface {
	// Connect establishes the transport session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down.
	Disconnect()

	// IsConnected reports the current session state.
	IsConnected() bool

	// ReadPoint reads one mapped data point in engineering units.
	ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error)

	// WritePoint writes one mapped data point. The value is in
	// engineering units; the client applies any reverse scaling.
	WritePoint(ctx context.Context, mapping device.PointMapping, value any) error

	// PollAll reads every mapping, isolating failures per point:
	// values holds the points that succeeded, errs the ones that
	// failed. One unreadable register never voids a whole sweep.
	PollAll(ctx context.Context, mappings []device.PointMapping) (values map[string]any, errs map[string]error)
}

// Subscriber is implemented by clients that can push changes instead of
// being polled (MQTT retained state, BACnet COV, OPC UA monitored items).
type Subscriber interface {
	// Subscribe registers for change notifications on the given
	// mappings. Notifications arrive on the returned channel until
	// ctx is cancelled; the client closes the channel on teardown.
	Subscribe(ctx context.Context, mappings []device.PointMapping) (<-chan Notification, error)
}

// Notification is one pushed value change from a subscribed point.
type Notification struct {
	// Point is the mapping name the change belongs to.
	Point string

	// Value in engineering units.
	Value any

	// Timestamp is when the client received the change.
	Timestamp time.Time
}
