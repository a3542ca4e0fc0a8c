package blockchain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// fakeNode answers the handful of JSON-RPC methods the client uses.
type fakeNode struct {
	chainID uint64

	mu         sync.Mutex
	native     map[common.Address]*big.Int
	balances   map[[2]common.Address]*big.Int
	allowances map[[3]common.Address]*big.Int
	symbol     string
	decimals   uint8
	down       bool

	calls atomic.Int32
}

func newFakeNode(t *testing.T, chainID uint64) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{
		chainID:    chainID,
		native:     map[common.Address]*big.Int{},
		balances:   map[[2]common.Address]*big.Int{},
		allowances: map[[3]common.Address]*big.Int{},
		symbol:     "USDC",
		decimals:   6,
	}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) setDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	n.calls.Add(1)

	n.mu.Lock()
	down := n.down
	n.mu.Unlock()
	if down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, rpcErr := n.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = map[string]any{"code": -32000, "message": rpcErr.Error()}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) dispatch(req rpcRequest) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		return hexutil.EncodeUint64(n.chainID), nil
	case "eth_getBalance":
		var owner common.Address
		if err := json.Unmarshal(req.Params[0], &owner); err != nil {
			return nil, err
		}
		return (*hexutil.Big)(valueOrZero(n.native[owner])), nil
	case "eth_call":
		var call struct {
			To    common.Address `json:"to"`
			Input hexutil.Bytes  `json:"input"`
			Data  hexutil.Bytes  `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			return nil, err
		}
		data := call.Input
		if len(data) == 0 {
			data = call.Data
		}
		out, err := n.contractCall(call.To, data)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(out), nil
	}
	return nil, fmt.Errorf("method %s not supported", req.Method)
}

func (n *fakeNode) contractCall(token common.Address, data []byte) ([]byte, error) {
	parsed, err := parseERC20()
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	for name, m := range parsed.Methods {
		if !bytes.Equal(m.ID, data[:4]) {
			continue
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		switch name {
		case "balanceOf":
			owner := args[0].(common.Address)
			return m.Outputs.Pack(valueOrZero(n.balances[[2]common.Address{token, owner}]))
		case "allowance":
			owner, spender := args[0].(common.Address), args[1].(common.Address)
			return m.Outputs.Pack(valueOrZero(n.allowances[[3]common.Address{token, owner, spender}]))
		case "decimals":
			return m.Outputs.Pack(n.decimals)
		case "symbol":
			return m.Outputs.Pack(n.symbol)
		}
	}
	return nil, fmt.Errorf("unknown selector %x", data[:4])
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
