package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// throttled wraps a Gateway with a token-bucket limiter so a fast loop cannot
// trip the broker's request-per-second ceiling.
type throttled struct {
	gw      Gateway
	limiter *rate.Limiter
}

// Throttled returns gw rate-limited to rps requests per second with the given
// burst. A non-positive rps returns gw unchanged.
func Throttled(gw Gateway, rps float64, burst int) Gateway {
	if rps <= 0 {
		return gw
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{gw: gw, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

func (t *throttled) Connect(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.gw.Connect(ctx)
}

func (t *throttled) EnsureConnected(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.gw.EnsureConnected(ctx)
}

func (t *throttled) GetSymbolInfo(ctx context.Context, symbol string) (SymbolSpec, error) {
	if err := t.wait(ctx); err != nil {
		return SymbolSpec{}, err
	}
	return t.gw.GetSymbolInfo(ctx, symbol)
}

func (t *throttled) GetAccountInfo(ctx context.Context) (AccountInfo, error) {
	if err := t.wait(ctx); err != nil {
		return AccountInfo{}, err
	}
	return t.gw.GetAccountInfo(ctx)
}

func (t *throttled) GetPositions(ctx context.Context) ([]Position, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.gw.GetPositions(ctx)
}

func (t *throttled) CheckOrder(ctx context.Context, req OrderRequest) (CheckResult, error) {
	if err := t.wait(ctx); err != nil {
		return CheckResult{}, err
	}
	return t.gw.CheckOrder(ctx, req)
}

func (t *throttled) SendOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := t.wait(ctx); err != nil {
		return OrderResult{}, err
	}
	return t.gw.SendOrder(ctx, req)
}

func (t *throttled) Close() error { return t.gw.Close() }
