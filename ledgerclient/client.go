package ledgerclient

import (
	"encoding/json"
	"fmt"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/happybigmtn/nullspace-bridge/common"
	"github.com/happybigmtn/nullspace-bridge/ledger"
)

// BridgeState is the bridge_getState result: the active policy plus the
// global counters.
type BridgeState struct {
	Policy ledger.Policy      `json:"policy"`
	Global ledger.GlobalState `json:"global"`
}

// ClientInterface defines the ledger bridge endpoints used by the relayer.
type ClientInterface interface {
	GetState() (*BridgeState, error)
	GetWithdrawal(id uint64) (*ledger.Withdrawal, error)
	GetAccount(key ledger.PublicKey) (*ledger.Account, error)
	GetTime() (uint64, error)
	SendRawTransaction(tx *ledger.Transaction) error
}

// Client talks to a ledger node's bridge JSON-RPC namespace.
type Client struct {
	url string
}

func NewClient(url string) *Client {
	return &Client{
		url: url,
	}
}

func (c *Client) GetState() (*BridgeState, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_getState")
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result BridgeState
	return &result, json.Unmarshal(response.Result, &result)
}

// GetWithdrawal returns nil without error when the withdrawal does not exist
// yet, so the relayer can poll for IDs at the head of the sequence.
func (c *Client) GetWithdrawal(id uint64) (*ledger.Withdrawal, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_getWithdrawal", id)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result *ledger.Withdrawal
	return result, json.Unmarshal(response.Result, &result)
}

func (c *Client) GetAccount(key ledger.PublicKey) (*ledger.Account, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_getAccount", key)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result *ledger.Account
	return result, json.Unmarshal(response.Result, &result)
}

// GetTime returns the ledger's consensus time in seconds.
func (c *Client) GetTime() (uint64, error) {
	response, err := rpc.JSONRPCCall(c.url, "bridge_getTime")
	if err != nil {
		return 0, err
	}
	if response.Error != nil {
		return 0, fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	var result uint64
	return result, json.Unmarshal(response.Result, &result)
}

// SendRawTransaction submits a signed transaction in its hex-encoded
// canonical binary form.
func (c *Client) SendRawTransaction(tx *ledger.Transaction) error {
	response, err := rpc.JSONRPCCall(c.url, "bridge_sendRawTransaction", common.EncodeHex(tx.Encode()))
	if err != nil {
		return err
	}
	if response.Error != nil {
		return fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	return nil
}
