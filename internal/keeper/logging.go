package keeper

import (
	"log"
)

type keeperLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // action | notify | fatal

	Game    uint64 `json:"game,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Action  string `json:"action,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	TxHash string `json:"tx_hash,omitempty"`
	// Raw carries the untranslated rejection text for non-accepted
	// outcomes.
	Raw string `json:"raw,omitempty"`

	Ok  bool   `json:"ok,omitempty"`
	Err string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func (k *Keeper) logEvent(ev keeperLogEvent) {
	if k.events == nil {
		return
	}
	if err := k.events.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}
