package program

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"bountyvault/core/events"
)

const (
	EventTypeInitialized = "program.initialized"
	EventTypeFunded      = "program.funded"
	EventTypePayout      = "program.payout"
	EventTypeBatchPayout = "program.batch_payout"
)

// NewInitializedEvent returns the payload emitted once when the program pool
// is created.
func NewInitializedEvent(p *Program, timestamp uint64) *events.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["programId"] = p.ProgramID
		attrs["authorizedKey"] = hex.EncodeToString(p.AuthorizedKey[:])
		attrs["token"] = hex.EncodeToString(p.Token[:])
		attrs["timestamp"] = strconv.FormatUint(timestamp, 10)
	}
	return &events.Event{Type: EventTypeInitialized, Attributes: attrs}
}

// NewFundedEvent returns the payload emitted when value enters the pool.
func NewFundedEvent(p *Program, funder [20]byte, amount *big.Int, timestamp uint64) *events.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["programId"] = p.ProgramID
		attrs["funder"] = hex.EncodeToString(funder[:])
		attrs["amount"] = cloneBigInt(amount).String()
		attrs["totalFunds"] = cloneBigInt(p.TotalFunds).String()
		attrs["timestamp"] = strconv.FormatUint(timestamp, 10)
	}
	return &events.Event{Type: EventTypeFunded, Attributes: attrs}
}

// NewPayoutEvent returns the payload for one draw-down from the pool.
func NewPayoutEvent(p *Program, payout Payout) *events.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["programId"] = p.ProgramID
		attrs["recipient"] = hex.EncodeToString(payout.Recipient[:])
		attrs["amount"] = cloneBigInt(payout.Amount).String()
		attrs["remaining"] = cloneBigInt(p.RemainingBalance).String()
		attrs["timestamp"] = strconv.FormatUint(payout.Timestamp, 10)
	}
	return &events.Event{Type: EventTypePayout, Attributes: attrs}
}

// NewBatchPayoutEvent summarises one batch payout invocation.
func NewBatchPayoutEvent(p *Program, count uint32, total *big.Int, timestamp uint64) *events.Event {
	attrs := map[string]string{
		"count":       strconv.FormatUint(uint64(count), 10),
		"totalAmount": cloneBigInt(total).String(),
		"timestamp":   strconv.FormatUint(timestamp, 10),
	}
	if p != nil {
		attrs["programId"] = p.ProgramID
		attrs["remaining"] = cloneBigInt(p.RemainingBalance).String()
	}
	return &events.Event{Type: EventTypeBatchPayout, Attributes: attrs}
}
