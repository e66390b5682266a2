package events

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventSignalDetected  Event = "signal.detected"
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderExecuted   Event = "order.executed"
	EventOrderFailed     Event = "order.failed"
	EventTradeClosed     Event = "trade.closed"
	EventKillSwitch      Event = "risk.killswitch"
	EventIterationSkip   Event = "loop.skipped"
	EventAccountSnapshot Event = "account.snapshot"
)
