package health

import "context"

// HealthPinger is implemented by the backends the pipeline cannot run
// without: the durable store, the ephemeral store, and the ManyChat
// client. HealthPing returns nil when the backend is reachable.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
