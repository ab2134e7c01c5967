package strategies

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Context binds strategy names from a ProtocolConfig to implementations and
// evaluates them against one state snapshot. Bindings are fixed when the
// Context is built and only read afterwards, so a Context may be shared by
// goroutines evaluating different assets.
type Context struct {
	env Env

	votingPower map[string]VotingPowerStrategy
	delegation  map[string]DelegationStrategy
	execution   map[string]ExecutionStrategy

	logger         logrus.FieldLogger
	parallelAssets bool
}

type Option func(*Context)

func WithVotingPowerStrategy(name string, s VotingPowerStrategy) Option {
	return func(c *Context) {
		c.votingPower[name] = s
	}
}

func WithDelegationStrategy(name string, s DelegationStrategy) Option {
	return func(c *Context) {
		c.delegation[name] = s
	}
}

func WithExecutionStrategy(name string, s ExecutionStrategy) Option {
	return func(c *Context) {
		c.execution[name] = s
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithParallelAssets evaluates assets concurrently. Totals are identical
// either way since per-asset figures are summed.
func WithParallelAssets(parallel bool) Option {
	return func(c *Context) {
		c.parallelAssets = parallel
	}
}

// NewContext builds a Context with no strategies besides those given in opts.
func NewContext(env Env, opts ...Option) *Context {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Context{
		env:         env,
		votingPower: make(map[string]VotingPowerStrategy),
		delegation:  make(map[string]DelegationStrategy),
		execution:   make(map[string]ExecutionStrategy),
		logger:      discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultContext builds a Context with the built-in strategies. opts are
// applied after the defaults and may add to or override them.
func DefaultContext(env Env, opts ...Option) *Context {
	defaults := []Option{
		WithVotingPowerStrategy(BalanceOfName, BalanceOf{}),
		WithVotingPowerStrategy(GetPastVotesName, GetPastVotes{}),
		WithDelegationStrategy(SplitDelegationName, SplitDelegation{}),
		WithExecutionStrategy(MajorityVotingName, MajorityVoting{}),
	}
	return NewContext(env, append(defaults, opts...)...)
}

func (c *Context) Env() Env {
	return c.env
}

func (c *Context) votingPowerStrategy(name string) (VotingPowerStrategy, error) {
	s, ok := c.votingPower[name]
	if !ok {
		return nil, errors.Wrapf(ErrStrategyNotFound, "voting power strategy %q", name)
	}
	return s, nil
}

// VotingPower returns account's weight for asset under the named strategy.
func (c *Context) VotingPower(ctx context.Context, name string, account common.Address, asset *Asset) (*uint256.Int, error) {
	s, err := c.votingPowerStrategy(name)
	if err != nil {
		return nil, err
	}
	power, err := s.VotingPower(ctx, c.env, account, asset)
	if err != nil {
		return nil, errors.Wrapf(err, "%s voting power of %s on %s", name, account, asset.Contract)
	}
	return power, nil
}

// AssetSupply returns the supply of asset under the named strategy.
func (c *Context) AssetSupply(ctx context.Context, name string, asset *Asset) (*uint256.Int, error) {
	s, err := c.votingPowerStrategy(name)
	if err != nil {
		return nil, err
	}
	supply, err := s.TotalSupply(ctx, c.env, asset)
	if err != nil {
		return nil, errors.Wrapf(err, "%s total supply of %s", name, asset.Contract)
	}
	return supply, nil
}

// ResolveDelegations runs the asset's delegation strategy.
func (c *Context) ResolveDelegations(ctx context.Context, account common.Address, asset *Asset, extraData []byte) ([]Delegation, error) {
	s, ok := c.delegation[asset.Delegation.Strategy]
	if !ok {
		return nil, errors.Wrapf(ErrStrategyNotFound, "delegation strategy %q", asset.Delegation.Strategy)
	}
	return s.Resolve(ctx, c.env, account, asset, extraData)
}

// CheckExecution applies the named execution strategy. A false result is a
// policy outcome; only an unknown name is an error.
func (c *Context) CheckExecution(name string, totalSupply *uint256.Int, tally Tally) (bool, error) {
	s, ok := c.execution[name]
	if !ok {
		return false, errors.Wrapf(ErrStrategyNotFound, "execution strategy %q", name)
	}
	passed := s.Check(totalSupply, tally)
	c.logger.WithFields(logrus.Fields{
		"strategy":     name,
		"total_supply": totalSupply.ToBig(),
		"passed":       passed,
	}).Debug("execution strategy checked")
	return passed, nil
}

// AssetVotingPower is account's weight for one asset. When the asset has a
// delegation strategy and extraData names delegators, the weight is the sum
// of each delegate's power divided by its ratio; otherwise it is the
// account's own power.
func (c *Context) AssetVotingPower(ctx context.Context, account common.Address, asset *Asset, extraData []byte) (*uint256.Int, error) {
	if !asset.HasDelegation() || len(extraData) == 0 {
		return c.VotingPower(ctx, asset.VotingPowerStrategy, account, asset)
	}

	delegations, err := c.ResolveDelegations(ctx, account, asset, extraData)
	if err != nil {
		return nil, err
	}

	total := new(uint256.Int)
	for _, d := range delegations {
		power, err := c.VotingPower(ctx, asset.VotingPowerStrategy, d.Delegate, asset)
		if err != nil {
			return nil, err
		}
		share := new(uint256.Int).Div(power, d.Ratio)
		c.logger.WithFields(logrus.Fields{
			"asset":    asset.Contract.Hex(),
			"delegate": d.Delegate.Hex(),
			"ratio":    d.Ratio.ToBig(),
			"share":    share.ToBig(),
		}).Debug("delegated voting power")
		if _, overflow := total.AddOverflow(total, share); overflow {
			return nil, errors.Wrapf(ErrOverflow, "asset %s", asset.Contract)
		}
	}
	return total, nil
}

// TotalVotingPower sums account's weight across every configured asset.
func (c *Context) TotalVotingPower(ctx context.Context, cfg *ProtocolConfig, account common.Address, extraData []byte) (*uint256.Int, error) {
	return c.sumAssets(ctx, cfg, func(ctx context.Context, asset *Asset) (*uint256.Int, error) {
		return c.AssetVotingPower(ctx, account, asset, extraData)
	})
}

// TotalSupply sums the supply of every configured asset.
func (c *Context) TotalSupply(ctx context.Context, cfg *ProtocolConfig) (*uint256.Int, error) {
	return c.sumAssets(ctx, cfg, func(ctx context.Context, asset *Asset) (*uint256.Int, error) {
		return c.AssetSupply(ctx, asset.VotingPowerStrategy, asset)
	})
}

func (c *Context) sumAssets(ctx context.Context, cfg *ProtocolConfig, eval func(context.Context, *Asset) (*uint256.Int, error)) (*uint256.Int, error) {
	figures := make([]*uint256.Int, len(cfg.Assets))

	if c.parallelAssets {
		g, gctx := errgroup.WithContext(ctx)
		for i := range cfg.Assets {
			i := i
			g.Go(func() error {
				v, err := eval(gctx, &cfg.Assets[i])
				if err != nil {
					return err
				}
				figures[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range cfg.Assets {
			v, err := eval(ctx, &cfg.Assets[i])
			if err != nil {
				return nil, err
			}
			figures[i] = v
		}
	}

	return Sum(figures...)
}

// Sum adds figures, failing with ErrOverflow instead of wrapping.
func Sum(figures ...*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range figures {
		if _, overflow := total.AddOverflow(total, v); overflow {
			return nil, ErrOverflow
		}
	}
	return total, nil
}
