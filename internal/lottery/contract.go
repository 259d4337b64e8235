package lottery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// lotteryABIJSON covers the subset of the lottery contract the bots touch:
// the two read views and the four draw-lifecycle writes.
const lotteryABIJSON = `[
  {"inputs":[],"name":"getCurrentGameInfo","outputs":[
    {"internalType":"uint256","name":"gameNumber","type":"uint256"},
    {"internalType":"uint8","name":"difficulty","type":"uint8"},
    {"internalType":"uint256","name":"prizePool","type":"uint256"},
    {"internalType":"uint256","name":"drawTime","type":"uint256"},
    {"internalType":"uint256","name":"timeUntilDraw","type":"uint256"}
  ],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"gameNumber","type":"uint256"}],"name":"getDetailedGameInfo","outputs":[
    {"internalType":"uint256","name":"gameId","type":"uint256"},
    {"internalType":"uint8","name":"status","type":"uint8"},
    {"internalType":"uint256","name":"prizePool","type":"uint256"},
    {"internalType":"uint256","name":"numberOfWinners","type":"uint256"},
    {"internalType":"uint256","name":"goldWinners","type":"uint256"},
    {"internalType":"uint256","name":"silverWinners","type":"uint256"},
    {"internalType":"uint256","name":"bronzeWinners","type":"uint256"},
    {"internalType":"uint256[4]","name":"winningNumbers","type":"uint256[4]"},
    {"internalType":"uint8","name":"difficulty","type":"uint8"},
    {"internalType":"uint256","name":"drawInitiatedBlock","type":"uint256"},
    {"internalType":"uint256","name":"randaoBlock","type":"uint256"},
    {"internalType":"uint256","name":"randaoValue","type":"uint256"},
    {"internalType":"uint256[4]","name":"payouts","type":"uint256[4]"}
  ],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"initiateDraw","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"gameNumber","type":"uint256"}],"name":"setRandomAndWinningNumbers","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[
    {"internalType":"uint256","name":"gameNumber","type":"uint256"},
    {"components":[
      {"internalType":"bytes","name":"val","type":"bytes"},
      {"internalType":"uint256","name":"bitlen","type":"uint256"}
    ],"internalType":"struct BigNumber[]","name":"v","type":"tuple[]"},
    {"components":[
      {"internalType":"bytes","name":"val","type":"bytes"},
      {"internalType":"uint256","name":"bitlen","type":"uint256"}
    ],"internalType":"struct BigNumber","name":"y","type":"tuple"}
  ],"name":"submitVDFProof","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"gameNumber","type":"uint256"}],"name":"calculatePayouts","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Client reads lottery state over a single eth RPC connection. All methods
// are side-effect free; failures are returned to the caller, which retries
// on its next cycle rather than inline.
type Client struct {
	eth  *ethclient.Client
	abi  abi.ABI
	addr common.Address

	callTimeout time.Duration
}

func NewClient(eth *ethclient.Client, addr common.Address) (*Client, error) {
	if eth == nil {
		return nil, fmt.Errorf("eth client required")
	}
	if (addr == common.Address{}) {
		return nil, fmt.Errorf("lottery contract address required")
	}
	parsed, err := abi.JSON(strings.NewReader(lotteryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("lottery abi parse: %w", err)
	}
	return &Client{
		eth:         eth,
		abi:         parsed,
		addr:        addr,
		callTimeout: 10 * time.Second,
	}, nil
}

func (c *Client) Address() common.Address { return c.addr }

func (c *Client) ABI() abi.ABI { return c.abi }

// CurrentGame returns the contract's current-game summary.
func (c *Client) CurrentGame(ctx context.Context) (CurrentGame, error) {
	vals, err := c.call(ctx, "getCurrentGameInfo")
	if err != nil {
		return CurrentGame{}, fmt.Errorf("getCurrentGameInfo: %w", err)
	}
	if len(vals) != 5 {
		return CurrentGame{}, fmt.Errorf("getCurrentGameInfo: unexpected result len %d", len(vals))
	}

	drawTime := toUint64(vals[3])
	return CurrentGame{
		ID:            toUint64(vals[0]),
		Difficulty:    toUint8(vals[1]),
		PrizePool:     toBig(vals[2]),
		DrawTime:      time.Unix(int64(drawTime), 0).UTC(),
		TimeUntilDraw: time.Duration(toUint64(vals[4])) * time.Second,
	}, nil
}

// GameState returns the detailed state for one game.
func (c *Client) GameState(ctx context.Context, id GameID) (GameState, error) {
	vals, err := c.call(ctx, "getDetailedGameInfo", new(big.Int).SetUint64(id))
	if err != nil {
		return GameState{}, fmt.Errorf("getDetailedGameInfo(%d): %w", id, err)
	}
	if len(vals) != 13 {
		return GameState{}, fmt.Errorf("getDetailedGameInfo(%d): unexpected result len %d", id, len(vals))
	}

	st := GameState{
		ID:                 toUint64(vals[0]),
		Phase:              Phase(toUint8(vals[1])),
		PrizePool:          toBig(vals[2]),
		NumberOfWinners:    toUint64(vals[3]),
		GoldWinners:        toUint64(vals[4]),
		SilverWinners:      toUint64(vals[5]),
		BronzeWinners:      toUint64(vals[6]),
		Difficulty:         toUint8(vals[8]),
		DrawInitiatedBlock: toUint64(vals[9]),
		RandaoBlock:        toUint64(vals[10]),
		RandaoValue:        toBig(vals[11]),
	}
	if nums, ok := vals[7].([4]*big.Int); ok {
		for i, n := range nums {
			if n != nil {
				st.WinningNumbers[i] = n.Uint64()
			}
		}
	}
	if payouts, ok := vals[12].([4]*big.Int); ok {
		for i, p := range payouts {
			if p != nil {
				st.Payouts[i] = new(big.Int).Set(p)
			}
		}
	}
	return st, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out, err := c.eth.CallContract(callCtx, ethereum.CallMsg{To: &c.addr, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return c.abi.Unpack(method, out)
}

func toBig(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok && b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func toUint64(v interface{}) uint64 {
	if b, ok := v.(*big.Int); ok && b != nil && b.IsUint64() {
		return b.Uint64()
	}
	return 0
}

func toUint8(v interface{}) uint8 {
	switch x := v.(type) {
	case uint8:
		return x
	case *big.Int:
		if x != nil && x.IsUint64() {
			return uint8(x.Uint64())
		}
	}
	return 0
}
