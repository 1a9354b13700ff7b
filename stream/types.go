package stream

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/pool"
)

// wireMessage is the JSON envelope delivered by the indexer's subscription.
// Data fields are kept as RawMessage so protocol-specific decoding can be
// deferred to the registered Decoder.
type wireMessage struct {
	BlockNumber       uint64                        `json:"blockNumber"`
	NewComponents     []wireComponent               `json:"newComponents,omitempty"`
	UpdatedComponents []wireComponent               `json:"updatedComponents,omitempty"`
	RemovedComponents []string                      `json:"removedComponents,omitempty"`
	StateDeltas       []wireStateDelta              `json:"stateDeltas,omitempty"`
	BalanceDeltas     map[string]map[string]string  `json:"balanceDeltas,omitempty"`
}

type wireComponent struct {
	Protocol string           `json:"protocol"`
	ID       string           `json:"id"`
	Tokens   []common.Address `json:"tokens"`
	Data     json.RawMessage  `json:"data"`
}

type wireStateDelta struct {
	Protocol    string          `json:"protocol"`
	ComponentID string          `json:"componentId"`
	Data        json.RawMessage `json:"data"`
}

// Decoder turns protocol-tagged raw payloads into concrete pool.ProtocolState
// values and state-delta appliers. One Decoder is registered per deployment;
// it dispatches on the wire protocol tag ("uniswapv2", "uniswapv3", ...).
type Decoder interface {
	// DecodeState builds the initial/replacement state for a new or fully
	// updated component.
	DecodeState(protocol string, data json.RawMessage) (pool.ProtocolState, error)

	// DecodeDelta builds a StateDelta.Apply closure for an incremental update
	// to an existing component.
	DecodeDelta(protocol string, data json.RawMessage) (func(prev pool.ProtocolState) (pool.ProtocolState, error), error)
}

func parseBalances(raw map[string]map[string]string) (map[pool.ComponentID]map[common.Address]*big.Int, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[pool.ComponentID]map[common.Address]*big.Int, len(raw))
	for compID, byToken := range raw {
		converted := make(map[common.Address]*big.Int, len(byToken))
		for tokenHex, amountStr := range byToken {
			amount, ok := new(big.Int).SetString(amountStr, 10)
			if !ok {
				return nil, errInvalidBalance(compID, tokenHex, amountStr)
			}
			converted[common.HexToAddress(tokenHex)] = amount
		}
		out[pool.ComponentID(compID)] = converted
	}
	return out, nil
}
