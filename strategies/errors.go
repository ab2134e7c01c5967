package strategies

import "github.com/pkg/errors"

var (
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrInvalidConfig      = errors.New("invalid voting protocol config")
	ErrInvalidLength      = errors.New("invalid length: delegation data is not a multiple of 20 bytes")
	ErrInvalidDelegations = errors.New("one or more delegations are invalid")
	ErrOverflow           = errors.New("voting power overflows 256 bits")
	ErrTallyExceedsSupply = errors.New("tally exceeds total supply")
)
