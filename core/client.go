package core

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/govproof/state"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Source is a live state accessor that can also pin the block an evaluation
// runs at. *state.RPC implements it.
type Source interface {
	state.Accessor

	Header(ctx context.Context, block uint64) (state.Header, error)
}

var _ Source = (*state.RPC)(nil)

// Dial connects to the node, retrying with Fibonacci backoff until the node
// answers a chain id query. Only the connection is retried; state reads made
// during an evaluation never are.
func Dial(ctx context.Context, url string, retries uint, interval time.Duration) (*ethclient.Client, error) {
	if retries == 0 {
		retries = 1
	}

	var client *ethclient.Client
	err := retry.Retry(func(attempt uint) error {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return err
		}
		if _, err := c.ChainID(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	}, strategy.Limit(retries), strategy.Backoff(backoff.Fibonacci(interval)))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}

	return client, nil
}
