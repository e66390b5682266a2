package broker

import "context"

// Gateway abstracts the broker connection. Implementations wrap a concrete
// broker SDK; the rest of the system only sees this interface so tests can
// substitute a mock without global state.
type Gateway interface {
	// Connect establishes the broker session.
	Connect(ctx context.Context) error
	// EnsureConnected reconnects if the session dropped.
	EnsureConnected(ctx context.Context) error
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolSpec, error)
	GetAccountInfo(ctx context.Context) (AccountInfo, error)
	GetPositions(ctx context.Context) ([]Position, error)
	// CheckOrder validates a request (margin, side, volume) without submitting.
	CheckOrder(ctx context.Context, req OrderRequest) (CheckResult, error)
	SendOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	Close() error
}
