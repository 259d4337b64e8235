package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func u256(n uint64) []byte {
	w := make([]byte, 32)
	new(big.Int).SetUint64(n).FillBytes(w)
	return w
}

func ticketLog(player common.Address, game uint64, numbers [3]uint64, etherball uint64) types.Log {
	data := u256(game)
	for _, n := range numbers {
		data = append(data, u256(n)...)
	}
	data = append(data, u256(etherball)...)
	return types.Log{
		Topics:      []common.Hash{TopicTicketPurchased, common.BytesToHash(player.Bytes())},
		Data:        data,
		TxHash:      common.HexToHash("0xbeef"),
		Index:       3,
		BlockNumber: 1200,
	}
}

func TestDecodeTicketPurchased(t *testing.T) {
	player := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ev, err := DecodeTicketPurchased(ticketLog(player, 9, [3]uint64{7, 21, 33}, 4))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Player != player {
		t.Fatalf("player: got %s want %s", ev.Player, player)
	}
	if ev.GameNumber != 9 {
		t.Fatalf("game: got %d want 9", ev.GameNumber)
	}
	if ev.Numbers != [4]uint64{7, 21, 33, 4} {
		t.Fatalf("numbers: got %v want [7 21 33 4]", ev.Numbers)
	}
	if want := ev.TxHash.Hex() + "_3"; ev.EventSignature() != want {
		t.Fatalf("signature: got %q want %q", ev.EventSignature(), want)
	}
}

func TestDecodeTicketPurchased_RejectsShortLog(t *testing.T) {
	if _, err := DecodeTicketPurchased(types.Log{Topics: []common.Hash{TopicTicketPurchased}}); err == nil {
		t.Fatal("missing player topic accepted")
	}
	if _, err := DecodeTicketPurchased(types.Log{
		Topics: []common.Hash{TopicTicketPurchased, {}},
		Data:   u256(1),
	}); err == nil {
		t.Fatal("short data accepted")
	}
}

func TestGameNumberOf(t *testing.T) {
	if got, err := GameNumberOf(types.Log{
		Topics: []common.Hash{TopicDrawInitiated, common.BigToHash(big.NewInt(14))},
	}); err != nil || got != 14 {
		t.Fatalf("DrawInitiated: got %d, %v want 14, nil", got, err)
	}

	if got, err := GameNumberOf(types.Log{
		Topics: []common.Hash{TopicVDFProofSubmitted, common.BytesToHash(make([]byte, 20))},
		Data:   u256(14),
	}); err != nil || got != 14 {
		t.Fatalf("VDFProofSubmitted: got %d, %v want 14, nil", got, err)
	}

	if _, err := GameNumberOf(types.Log{Topics: []common.Hash{common.HexToHash("0x1234")}}); err == nil {
		t.Fatal("unknown topic accepted")
	}
}

func TestEventName(t *testing.T) {
	if got := EventName(TopicRandomSet); got != "RandomSet" {
		t.Fatalf("EventName: got %q want RandomSet", got)
	}
	if got := EventName(common.HexToHash("0x01")); got != "" {
		t.Fatalf("EventName unknown: got %q want empty", got)
	}
}
