package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const statusOracleABI = `[
	{"type":"function","name":"markDefault","inputs":[{"name":"user","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"clearDefault","inputs":[{"name":"user","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"updateCreditScore","inputs":[{"name":"user","type":"address"},{"name":"score","type":"uint16"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"isRegistered","inputs":[{"name":"user","type":"address"}],"outputs":[{"type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"isDefaulted","inputs":[{"name":"user","type":"address"}],"outputs":[{"type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"hasCollateral","inputs":[{"name":"user","type":"address"}],"outputs":[{"type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getScore","inputs":[{"name":"user","type":"address"}],"outputs":[{"type":"uint16"}],"stateMutability":"view"}
]`

// EthOracle talks to the status oracle contract over JSON-RPC.
type EthOracle struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts
}

// NewEthOracle connects to the RPC endpoint and binds the oracle
// contract. The private key signs the status-update transactions.
func NewEthOracle(ctx context.Context, rpcURL, contractAddress, privateKeyHex string, chainID int64) (*EthOracle, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing oracle rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(statusOracleABI))
	if err != nil {
		return nil, fmt.Errorf("parsing oracle abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid oracle signing key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	contract := bind.NewBoundContract(addr, parsedABI, client, client, client)

	return &EthOracle{client: client, contract: contract, opts: opts}, nil
}

func (o *EthOracle) transact(ctx context.Context, method string, args ...any) error {
	opts := *o.opts
	opts.Context = ctx
	if _, err := o.contract.Transact(&opts, method, args...); err != nil {
		return fmt.Errorf("oracle %s: %w", method, err)
	}
	return nil
}

func (o *EthOracle) callBool(ctx context.Context, method string, user string) (bool, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := o.contract.Call(opts, &out, method, common.HexToAddress(user)); err != nil {
		return false, fmt.Errorf("oracle %s: %w", method, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("oracle %s: unexpected output arity %d", method, len(out))
	}
	result, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("oracle %s: unexpected output type %T", method, out[0])
	}
	return result, nil
}

func (o *EthOracle) MarkDefault(ctx context.Context, user string) error {
	return o.transact(ctx, "markDefault", common.HexToAddress(user))
}

func (o *EthOracle) ClearDefault(ctx context.Context, user string) error {
	return o.transact(ctx, "clearDefault", common.HexToAddress(user))
}

func (o *EthOracle) UpdateCreditScore(ctx context.Context, user string, score int) error {
	return o.transact(ctx, "updateCreditScore", common.HexToAddress(user), uint16(score))
}

func (o *EthOracle) IsRegistered(ctx context.Context, user string) (bool, error) {
	return o.callBool(ctx, "isRegistered", user)
}

func (o *EthOracle) IsDefaulted(ctx context.Context, user string) (bool, error) {
	return o.callBool(ctx, "isDefaulted", user)
}

func (o *EthOracle) HasCollateral(ctx context.Context, user string) (bool, error) {
	return o.callBool(ctx, "hasCollateral", user)
}

func (o *EthOracle) GetScore(ctx context.Context, user string) (int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := o.contract.Call(opts, &out, "getScore", common.HexToAddress(user)); err != nil {
		return 0, fmt.Errorf("oracle getScore: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("oracle getScore: unexpected output arity %d", len(out))
	}
	score, ok := out[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("oracle getScore: unexpected output type %T", out[0])
	}
	return int(score), nil
}

// Close releases the underlying RPC connection.
func (o *EthOracle) Close() {
	o.client.Close()
}
