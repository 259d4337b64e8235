package lottery

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eatthepie/bots/internal/vdf"
)

const (
	defaultSimulateTimeout = 10 * time.Second
	defaultConfirmTimeout  = 3 * time.Minute
)

// Executor submits draw-lifecycle writes. Every write is simulated with
// CallContract first so a revert never spends gas; the revert reason is
// classified once here and handed to callers as a tagged Result.
//
// A nil error with a non-accepted Result means the ledger rejected the
// action. A non-nil error means we could not get an answer at all
// (transport failure, confirmation timeout) and the caller should re-read
// state on its next cycle rather than assume either way.
type Executor struct {
	eth      *ethclient.Client
	contract *Client
	pk       *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	simulateTimeout time.Duration
	confirmTimeout  time.Duration
}

func NewExecutor(eth *ethclient.Client, contract *Client, pk *ecdsa.PrivateKey, chainID *big.Int) (*Executor, error) {
	if eth == nil || contract == nil {
		return nil, fmt.Errorf("eth client and contract required")
	}
	if pk == nil {
		return nil, fmt.Errorf("private key required to submit transactions")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	return &Executor{
		eth:             eth,
		contract:        contract,
		pk:              pk,
		from:            crypto.PubkeyToAddress(pk.PublicKey),
		chainID:         chainID,
		simulateTimeout: defaultSimulateTimeout,
		confirmTimeout:  defaultConfirmTimeout,
	}, nil
}

func (e *Executor) From() common.Address { return e.from }

// InitiateDraw starts the draw for the current game. value covers the
// randomness fee; the exact cost is not known up front, so callers
// escalate through candidates (see keeper.initiateWithFunding).
func (e *Executor) InitiateDraw(ctx context.Context, value *big.Int) (Result, error) {
	return e.submit(ctx, "initiateDraw", value)
}

func (e *Executor) SetRandom(ctx context.Context, id GameID) (Result, error) {
	return e.submit(ctx, "setRandomAndWinningNumbers", nil, new(big.Int).SetUint64(id))
}

func (e *Executor) SubmitVDFProof(ctx context.Context, id GameID, proof vdf.Proof) (Result, error) {
	v, y, err := proof.ABIForm()
	if err != nil {
		return Result{}, err
	}
	return e.submit(ctx, "submitVDFProof", nil, new(big.Int).SetUint64(id), v, y)
}

func (e *Executor) CalculatePayouts(ctx context.Context, id GameID) (Result, error) {
	return e.submit(ctx, "calculatePayouts", nil, new(big.Int).SetUint64(id))
}

func (e *Executor) submit(ctx context.Context, method string, value *big.Int, args ...interface{}) (Result, error) {
	data, err := e.contract.ABI().Pack(method, args...)
	if err != nil {
		return Result{}, fmt.Errorf("%s pack: %w", method, err)
	}

	addr := e.contract.Address()
	msg := ethereum.CallMsg{
		From:  e.from,
		To:    &addr,
		Value: value,
		Data:  data,
	}

	simCtx, cancel := context.WithTimeout(ctx, e.simulateTimeout)
	_, simErr := e.eth.CallContract(simCtx, msg, nil)
	cancel()
	if simErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// Only an actual revert is a ledger answer; a transport or
		// RPC-level failure means no answer and must not be classified.
		if !isRevert(simErr) {
			return Result{}, fmt.Errorf("%s simulate: %w", method, simErr)
		}
		raw := revertReason(simErr)
		return Result{Outcome: Classify(raw), Raw: raw}, nil
	}

	opts, err := bind.NewKeyedTransactorWithChainID(e.pk, e.chainID)
	if err != nil {
		return Result{}, err
	}
	opts.Context = ctx
	opts.Value = value

	contract := bind.NewBoundContract(addr, e.contract.ABI(), e.eth, e.eth, e.eth)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return Result{}, fmt.Errorf("%s send: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.eth, tx)
	if err != nil {
		return Result{}, fmt.Errorf("%s confirm tx=%s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// Simulation passed but the mined tx reverted: state moved between
		// simulate and include. Surface as unclassified with the hash.
		return Result{
			Outcome: OutcomeUnclassified,
			TxHash:  tx.Hash(),
			Raw:     fmt.Sprintf("transaction reverted on-chain tx=%s", tx.Hash().Hex()),
		}, nil
	}
	return Result{Outcome: OutcomeAccepted, TxHash: tx.Hash()}, nil
}

// errorSelector is the 4-byte selector of the solidity Error(string) ABI
// encoding carried in revert data.
var errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// isRevert reports whether err is a contract revert rather than a
// transport or RPC-level failure. Reverts carry revert data, or at least
// the "execution reverted" message.
func isRevert(err error) bool {
	var de interface{ ErrorData() interface{} }
	if errors.As(err, &de) && de.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// revertReason extracts the human-readable revert string when the RPC
// error carries standard Error(string) data, else falls back to the raw
// error text.
func revertReason(err error) string {
	type dataError interface {
		ErrorData() interface{}
	}

	de, ok := err.(dataError)
	if !ok {
		return err.Error()
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return err.Error()
	}
	raw, decodeErr := hex.DecodeString(strings.TrimPrefix(hexData, "0x"))
	if decodeErr != nil || len(raw) < 4+32+32 {
		return err.Error()
	}
	if !strings.HasPrefix(hex.EncodeToString(raw[:4]), hex.EncodeToString(errorSelector)) {
		return err.Error()
	}

	// Skip selector, then abi-encoded string: offset word, length word, data.
	body := raw[4:]
	length := new(big.Int).SetBytes(body[32:64])
	if !length.IsUint64() || 64+length.Uint64() > uint64(len(body)) {
		return err.Error()
	}
	reason := string(body[64 : 64+length.Uint64()])
	if strings.TrimSpace(reason) == "" {
		return err.Error()
	}
	return reason
}
