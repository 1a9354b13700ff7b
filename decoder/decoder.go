// Package decoder implements the protocol decoder the stream client
// dispatches to: it turns a wire component or delta's protocol-tagged JSON
// payload into a concrete pool.ProtocolState, one case per supported AMM.
package decoder

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/pool"
	"github.com/defistate/market-maker/pools/uniswapv2"
	"github.com/defistate/market-maker/pools/uniswapv3"
	"github.com/defistate/market-maker/stream"
)

const (
	ProtocolUniswapV2 = "uniswapv2"
	ProtocolUniswapV3 = "uniswapv3"
)

// Registry dispatches DecodeState/DecodeDelta on the wire protocol tag.
// The zero value supports every built-in protocol.
type Registry struct{}

var _ stream.Decoder = Registry{}

func (Registry) DecodeState(protocol string, data json.RawMessage) (pool.ProtocolState, error) {
	switch protocol {
	case ProtocolUniswapV2:
		var w wireV2Pool
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoder: unmarshal uniswapv2 state: %w", err)
		}
		return uniswapv2.NewState(w.toPool()), nil
	case ProtocolUniswapV3:
		var w wireV3Pool
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoder: unmarshal uniswapv3 state: %w", err)
		}
		return uniswapv3.NewState(w.toPool()), nil
	default:
		return nil, fmt.Errorf("decoder: unsupported protocol %q", protocol)
	}
}

func (Registry) DecodeDelta(protocol string, data json.RawMessage) (func(prev pool.ProtocolState) (pool.ProtocolState, error), error) {
	switch protocol {
	case ProtocolUniswapV2:
		var w wireV2Delta
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoder: unmarshal uniswapv2 delta: %w", err)
		}
		return func(prev pool.ProtocolState) (pool.ProtocolState, error) {
			prevState, ok := prev.(*uniswapv2.State)
			if !ok {
				return nil, fmt.Errorf("decoder: uniswapv2 delta applied to %T", prev)
			}
			p := prevState.Pool
			if w.Reserve0 != nil {
				p.Reserve0 = w.Reserve0
			}
			if w.Reserve1 != nil {
				p.Reserve1 = w.Reserve1
			}
			return uniswapv2.NewState(p), nil
		}, nil
	case ProtocolUniswapV3:
		var w wireV3Delta
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoder: unmarshal uniswapv3 delta: %w", err)
		}
		return func(prev pool.ProtocolState) (pool.ProtocolState, error) {
			prevState, ok := prev.(*uniswapv3.State)
			if !ok {
				return nil, fmt.Errorf("decoder: uniswapv3 delta applied to %T", prev)
			}
			p := prevState.Pool
			if w.Tick != nil {
				p.Tick = *w.Tick
			}
			if w.SqrtPriceX96 != nil {
				p.SqrtPriceX96 = w.SqrtPriceX96
			}
			if w.Liquidity != nil {
				p.Liquidity = w.Liquidity
			}
			if w.Ticks != nil {
				p.Ticks = make([]uniswapv3.TickInfo, len(w.Ticks))
				for i, t := range w.Ticks {
					p.Ticks[i] = t.toTickInfo()
				}
			}
			return uniswapv3.NewState(p), nil
		}, nil
	default:
		return nil, fmt.Errorf("decoder: unsupported protocol %q", protocol)
	}
}

type wireV2Pool struct {
	Address  common.Address `json:"address"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"`
}

func (w wireV2Pool) toPool() uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  w.Address,
		Token0:   w.Token0,
		Token1:   w.Token1,
		Reserve0: w.Reserve0,
		Reserve1: w.Reserve1,
		FeeBps:   w.FeeBps,
	}
}

type wireV2Delta struct {
	Reserve0 *big.Int `json:"reserve0"`
	Reserve1 *big.Int `json:"reserve1"`
}

type wireTickInfo struct {
	Index          int64    `json:"index"`
	LiquidityGross *big.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
}

func (w wireTickInfo) toTickInfo() uniswapv3.TickInfo {
	return uniswapv3.TickInfo{
		Index:          w.Index,
		LiquidityGross: w.LiquidityGross,
		LiquidityNet:   w.LiquidityNet,
	}
}

type wireV3Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Fee          uint64         `json:"fee"`
	TickSpacing  int64          `json:"tickSpacing"`
	Tick         int64          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Ticks        []wireTickInfo `json:"ticks"`
}

func (w wireV3Pool) toPool() uniswapv3.Pool {
	ticks := make([]uniswapv3.TickInfo, len(w.Ticks))
	for i, t := range w.Ticks {
		ticks[i] = t.toTickInfo()
	}
	return uniswapv3.Pool{
		Address:      w.Address,
		Token0:       w.Token0,
		Token1:       w.Token1,
		Fee:          w.Fee,
		TickSpacing:  w.TickSpacing,
		Tick:         w.Tick,
		Liquidity:    w.Liquidity,
		SqrtPriceX96: w.SqrtPriceX96,
		Ticks:        ticks,
	}
}

type wireV3Delta struct {
	Tick         *int64         `json:"tick"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Liquidity    *big.Int       `json:"liquidity"`
	Ticks        []wireTickInfo `json:"ticks,omitempty"`
}
