package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/0xPolygon/cdk-rpc/rpc"

	"github.com/happybigmtn/nullspace-bridge/ledger"
	"github.com/happybigmtn/nullspace-bridge/ledgerclient"
	"github.com/happybigmtn/nullspace-bridge/relayer"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
)

type BridgeClientInterface interface {
	RelayerStatus() (*relayer.Status, error)
	DepositHistory(limit, offset int) ([]*store.Deposit, error)
	WithdrawalRelay(withdrawalID uint64) (*store.Release, error)
	ReleaseHistory(limit, offset int) ([]*store.Release, error)
	State() (*ledgerclient.BridgeState, error)
	Withdrawal(withdrawalID uint64) (*ledger.Withdrawal, error)
}

func (c *Client) RelayerStatus() (*relayer.Status, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_relayerStatus")
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result relayer.Status
	return &result, json.Unmarshal(response.Result, &result)
}

func (c *Client) DepositHistory(limit, offset int) ([]*store.Deposit, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_depositHistory", limit, offset)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result []*store.Deposit
	return result, json.Unmarshal(response.Result, &result)
}

func (c *Client) WithdrawalRelay(withdrawalID uint64) (*store.Release, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_withdrawalRelay", withdrawalID)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result store.Release
	return &result, json.Unmarshal(response.Result, &result)
}

func (c *Client) ReleaseHistory(limit, offset int) ([]*store.Release, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_releaseHistory", limit, offset)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result []*store.Release
	return result, json.Unmarshal(response.Result, &result)
}

func (c *Client) State() (*ledgerclient.BridgeState, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_state")
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result ledgerclient.BridgeState
	return &result, json.Unmarshal(response.Result, &result)
}

func (c *Client) Withdrawal(withdrawalID uint64) (*ledger.Withdrawal, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_withdrawal", withdrawalID)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result ledger.Withdrawal
	return &result, json.Unmarshal(response.Result, &result)
}
