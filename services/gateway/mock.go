package gatewaysvc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/skoolpay/skoolpay/core/plan"
)

// MockGateway approves every charge after a fixed delay and hands out
// sequential TXN references. The default implementation in dev and tests; no
// money moves.
type MockGateway struct {
	delay   time.Duration
	counter uint64

	// Fail makes every Charge return an error, to exercise dependency-failure paths.
	Fail error
}

var _ plan.Gateway = (*MockGateway)(nil)

func NewMockGateway(delay time.Duration) *MockGateway {
	return &MockGateway{delay: delay}
}

func (g *MockGateway) Charge(ctx context.Context, ch plan.Charge) (string, error) {
	if g.Fail != nil {
		return "", g.Fail
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("TXN%06d", atomic.AddUint64(&g.counter, 1)), nil
}
