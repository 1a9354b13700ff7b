package pricefeed

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Config selects and parameterizes a Provider by type tag.
type Config struct {
	Type    Type
	Reverse bool

	// Chainlink
	OracleAddress common.Address
	EthClient     ethCaller

	// Websocket
	URL    string
	Logger Logger
}

// NewProvider builds a Provider from cfg, applying the reverse wrapper
// uniformly regardless of the underlying type.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	var base Provider

	switch cfg.Type {
	case TypeChainlink:
		if cfg.EthClient == nil {
			return nil, fmt.Errorf("pricefeed: chainlink provider requires an eth client")
		}
		if cfg.OracleAddress == (common.Address{}) {
			return nil, fmt.Errorf("pricefeed: chainlink provider requires an oracle address")
		}
		base = NewChainlinkProvider(cfg.EthClient, cfg.OracleAddress)
	case TypeWebsocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("pricefeed: websocket provider requires a URL")
		}
		if cfg.Logger == nil {
			return nil, fmt.Errorf("pricefeed: websocket provider requires a Logger")
		}
		base = NewWebsocketProvider(ctx, cfg.URL, cfg.Logger)
	default:
		return nil, fmt.Errorf("pricefeed: unknown provider type %q", cfg.Type)
	}

	return WithReverse(base, cfg.Reverse), nil
}
