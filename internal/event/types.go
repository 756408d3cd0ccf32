package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "bridge.destroyed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeBridgeStateChanged = "bridge.state_changed"
	TypeBridgeDestroyed    = "bridge.destroyed"
	TypeBridgeFatal        = "bridge.fatal"
	TypePendingExecuted    = "bridge.pending_executed"
	TypeAppInitialized     = "app.initialized"
	TypeAppDestroyed       = "app.destroyed"
	TypeAppQuit            = "app.quit"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Bridge Lifecycle Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted on every bridge state transition. States are
// carried as their String() form so this package stays free of bridge imports.
type StateChangedEvent struct {
	baseEvent
	BridgeID string
	From     string
	To       string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(bridgeID, from, to string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeBridgeStateChanged),
		BridgeID:  bridgeID,
		From:      from,
		To:        to,
	}
}

// BridgeDestroyedEvent is emitted once, from the bridge's deletion routine.
type BridgeDestroyedEvent struct {
	baseEvent
	BridgeID string
	// Synchronous is true when deletion ran in the requesting goroutine
	// rather than in a loop callback.
	Synchronous bool
}

// NewBridgeDestroyedEvent creates a BridgeDestroyedEvent.
func NewBridgeDestroyedEvent(bridgeID string, synchronous bool) BridgeDestroyedEvent {
	return BridgeDestroyedEvent{
		baseEvent:   newBaseEvent(TypeBridgeDestroyed),
		BridgeID:    bridgeID,
		Synchronous: synchronous,
	}
}

// BridgeFatalEvent is emitted when the command channel becomes unusable and
// the bridge begins an unrequested shutdown.
type BridgeFatalEvent struct {
	baseEvent
	BridgeID string
	Reason   string
}

// NewBridgeFatalEvent creates a BridgeFatalEvent.
func NewBridgeFatalEvent(bridgeID, reason string) BridgeFatalEvent {
	return BridgeFatalEvent{
		baseEvent: newBaseEvent(TypeBridgeFatal),
		BridgeID:  bridgeID,
		Reason:    reason,
	}
}

// PendingExecutedEvent is emitted after the pending-work runner returns.
type PendingExecutedEvent struct {
	baseEvent
	BridgeID string
	Ran      int // functions executed by this invocation, -1 if unknown
}

// NewPendingExecutedEvent creates a PendingExecutedEvent.
func NewPendingExecutedEvent(bridgeID string, ran int) PendingExecutedEvent {
	return PendingExecutedEvent{
		baseEvent: newBaseEvent(TypePendingExecuted),
		BridgeID:  bridgeID,
		Ran:       ran,
	}
}

// -----------------------------------------------------------------------------
// Application Events
// -----------------------------------------------------------------------------

// AppInitializedEvent reports the outcome of Application.OnInitialize.
type AppInitializedEvent struct {
	baseEvent
	BridgeID string
	AppID    string
	Success  bool
}

// NewAppInitializedEvent creates an AppInitializedEvent.
func NewAppInitializedEvent(bridgeID, appID string, success bool) AppInitializedEvent {
	return AppInitializedEvent{
		baseEvent: newBaseEvent(TypeAppInitialized),
		BridgeID:  bridgeID,
		AppID:     appID,
		Success:   success,
	}
}

// AppDestroyedEvent is emitted after Application.InvokeOnDestroy returns.
type AppDestroyedEvent struct {
	baseEvent
	BridgeID string
	AppID    string
}

// NewAppDestroyedEvent creates an AppDestroyedEvent.
func NewAppDestroyedEvent(bridgeID, appID string) AppDestroyedEvent {
	return AppDestroyedEvent{
		baseEvent: newBaseEvent(TypeAppDestroyed),
		BridgeID:  bridgeID,
		AppID:     appID,
	}
}

// AppQuitEvent is emitted when an application asks to quit from the loop thread.
type AppQuitEvent struct {
	baseEvent
	BridgeID string
	AppID    string
}

// NewAppQuitEvent creates an AppQuitEvent.
func NewAppQuitEvent(bridgeID, appID string) AppQuitEvent {
	return AppQuitEvent{
		baseEvent: newBaseEvent(TypeAppQuit),
		BridgeID:  bridgeID,
		AppID:     appID,
	}
}
