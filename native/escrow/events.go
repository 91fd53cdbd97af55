package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"bountyvault/core/events"
)

const (
	EventTypeInitialized   = "escrow.initialized"
	EventTypeFundsLocked   = "escrow.funds_locked"
	EventTypeFundsReleased = "escrow.funds_released"
	EventTypeFundsRefunded = "escrow.funds_refunded"
	EventTypeBatchLocked   = "escrow.batch_locked"
	EventTypeBatchReleased = "escrow.batch_released"
)

// NewInitializedEvent returns the canonical payload emitted once when the
// contract instance is initialised.
func NewInitializedEvent(admin, token [20]byte, timestamp uint64) *events.Event {
	return &events.Event{Type: EventTypeInitialized, Attributes: map[string]string{
		"admin":     hex.EncodeToString(admin[:]),
		"token":     hex.EncodeToString(token[:]),
		"timestamp": strconv.FormatUint(timestamp, 10),
	}}
}

// NewFundsLockedEvent returns the canonical payload for a newly locked escrow.
func NewFundsLockedEvent(e *Escrow) *events.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["bountyId"] = strconv.FormatUint(e.BountyID, 10)
		attrs["depositor"] = hex.EncodeToString(e.Depositor[:])
		attrs["amount"] = cloneBigInt(e.Amount).String()
		attrs["deadline"] = strconv.FormatUint(e.Deadline, 10)
		attrs["timestamp"] = strconv.FormatUint(e.CreatedAt, 10)
	}
	return &events.Event{Type: EventTypeFundsLocked, Attributes: attrs}
}

// NewFundsReleasedEvent returns the canonical payload for a release of
// escrowed funds to a beneficiary.
func NewFundsReleasedEvent(e *Escrow, beneficiary [20]byte, amount *big.Int, timestamp uint64) *events.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["bountyId"] = strconv.FormatUint(e.BountyID, 10)
		attrs["beneficiary"] = hex.EncodeToString(beneficiary[:])
		attrs["amount"] = cloneBigInt(amount).String()
		attrs["timestamp"] = strconv.FormatUint(timestamp, 10)
	}
	return &events.Event{Type: EventTypeFundsReleased, Attributes: attrs}
}

// NewFundsRefundedEvent returns the canonical payload for a refund, carrying
// the mode and the post-refund remaining amount for the indexing pipeline.
func NewFundsRefundedEvent(e *Escrow, rec RefundRecord) *events.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["bountyId"] = strconv.FormatUint(e.BountyID, 10)
		attrs["recipient"] = hex.EncodeToString(rec.Recipient[:])
		attrs["amount"] = cloneBigInt(rec.Amount).String()
		attrs["mode"] = rec.Mode.String()
		attrs["remaining"] = cloneBigInt(e.RemainingAmount).String()
		attrs["timestamp"] = strconv.FormatUint(rec.Timestamp, 10)
	}
	return &events.Event{Type: EventTypeFundsRefunded, Attributes: attrs}
}

// NewBatchLockedEvent summarises one batch lock invocation.
func NewBatchLockedEvent(count uint32, total *big.Int, timestamp uint64) *events.Event {
	return &events.Event{Type: EventTypeBatchLocked, Attributes: map[string]string{
		"count":       strconv.FormatUint(uint64(count), 10),
		"totalAmount": cloneBigInt(total).String(),
		"timestamp":   strconv.FormatUint(timestamp, 10),
	}}
}

// NewBatchReleasedEvent summarises one batch release invocation.
func NewBatchReleasedEvent(count uint32, total *big.Int, timestamp uint64) *events.Event {
	return &events.Event{Type: EventTypeBatchReleased, Attributes: map[string]string{
		"count":       strconv.FormatUint(uint64(count), 10),
		"totalAmount": cloneBigInt(total).String(),
		"timestamp":   strconv.FormatUint(timestamp, 10),
	}}
}
