package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event topics for the lottery contract, keyed by event name. Game-scoped
// events carry the game number as topic[1]; VDFProofSubmitted indexes the
// submitter instead and keeps the game number in data.
var (
	TopicTicketPurchased     = crypto.Keccak256Hash([]byte("TicketPurchased(address,uint256,uint256[3],uint256)"))
	TopicDrawInitiated       = crypto.Keccak256Hash([]byte("DrawInitiated(uint256,uint256)"))
	TopicRandomSet           = crypto.Keccak256Hash([]byte("RandomSet(uint256,uint256)"))
	TopicVDFProofSubmitted   = crypto.Keccak256Hash([]byte("VDFProofSubmitted(address,uint256)"))
	TopicGamePrizePayoutInfo = crypto.Keccak256Hash([]byte("GamePrizePayoutInfo(uint256,uint256,uint256,uint256)"))
)

var eventNames = map[common.Hash]string{
	TopicTicketPurchased:     "TicketPurchased",
	TopicDrawInitiated:       "DrawInitiated",
	TopicRandomSet:           "RandomSet",
	TopicVDFProofSubmitted:   "VDFProofSubmitted",
	TopicGamePrizePayoutInfo: "GamePrizePayoutInfo",
}

// EventName maps a topic0 hash to its event name, "" when unknown.
func EventName(topic0 common.Hash) string {
	return eventNames[topic0]
}

// AllTopics returns every topic this indexer subscribes to.
func AllTopics() []common.Hash {
	return []common.Hash{
		TopicTicketPurchased,
		TopicDrawInitiated,
		TopicRandomSet,
		TopicVDFProofSubmitted,
		TopicGamePrizePayoutInfo,
	}
}

// TicketEvent is one decoded TicketPurchased log.
type TicketEvent struct {
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64

	Player     common.Address
	GameNumber uint64
	// Numbers holds the three picked numbers plus the etherball.
	Numbers [4]uint64
}

// EventSignature is the unique per-log key used for idempotent ingestion.
func (t TicketEvent) EventSignature() string {
	return fmt.Sprintf("%s_%d", t.TxHash.Hex(), t.LogIndex)
}

// DecodeTicketPurchased decodes a TicketPurchased log.
//
// topics: 0 event sig, 1 player (address indexed)
// data words: gameNumber, numbers[0..2] (fixed array inline), etherball
func DecodeTicketPurchased(vLog types.Log) (*TicketEvent, error) {
	if len(vLog.Topics) < 2 {
		return nil, fmt.Errorf("ticket log: unexpected topics len=%d", len(vLog.Topics))
	}
	if len(vLog.Data) < 32*5 {
		return nil, fmt.Errorf("ticket log: unexpected data len=%d", len(vLog.Data))
	}

	readU256 := func(word int) *big.Int {
		start := word * 32
		return new(big.Int).SetBytes(vLog.Data[start : start+32])
	}

	ev := &TicketEvent{
		TxHash:      vLog.TxHash,
		LogIndex:    vLog.Index,
		BlockNumber: vLog.BlockNumber,
		Player:      common.BytesToAddress(vLog.Topics[1].Bytes()),
		GameNumber:  readU256(0).Uint64(),
	}
	for i := 0; i < 3; i++ {
		ev.Numbers[i] = readU256(1 + i).Uint64()
	}
	ev.Numbers[3] = readU256(4).Uint64()
	return ev, nil
}

// GameNumberOf extracts the game number from a lifecycle event log.
func GameNumberOf(vLog types.Log) (uint64, error) {
	if len(vLog.Topics) == 0 {
		return 0, fmt.Errorf("log without topics")
	}
	switch vLog.Topics[0] {
	case TopicDrawInitiated, TopicRandomSet, TopicGamePrizePayoutInfo:
		if len(vLog.Topics) < 2 {
			return 0, fmt.Errorf("%s: unexpected topics len=%d", eventNames[vLog.Topics[0]], len(vLog.Topics))
		}
		return new(big.Int).SetBytes(vLog.Topics[1].Bytes()).Uint64(), nil
	case TopicVDFProofSubmitted:
		if len(vLog.Data) < 32 {
			return 0, fmt.Errorf("VDFProofSubmitted: unexpected data len=%d", len(vLog.Data))
		}
		return new(big.Int).SetBytes(vLog.Data[:32]).Uint64(), nil
	default:
		return 0, fmt.Errorf("unknown event topic %s", vLog.Topics[0].Hex())
	}
}
