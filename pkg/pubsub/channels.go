package pubsub

// DefaultChannel is where issuance events are published.
const DefaultChannel = "uniqueid:events"

// Event types for identifier issuance.
const (
	// EventIDSpent: an identifier was substituted and the target succeeded.
	EventIDSpent = "id.spent"
	// EventIDWasted: an identifier was issued but the target failed.
	EventIDWasted = "id.wasted"
)

// IssuancePayload describes one identifier issued by ID.EXEC.
type IssuancePayload struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Token  string `json:"token"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}
