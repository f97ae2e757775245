package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedDecision marks a decision that violates the schema. The driver
// treats any final output carrying it as corrupt engine output, not as a
// recoverable strategy failure.
var ErrMalformedDecision = errors.New("malformed decision")

// Action is the trade action decided for a ticker on a day.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionShort Action = "short"
	ActionCover Action = "cover"
	ActionHold  Action = "hold"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionShort, ActionCover, ActionHold:
		return true
	}
	return false
}

// TradeDecision is a sized, unsigned order for a single ticker. Quantity is
// always non-negative; the action carries the direction.
type TradeDecision struct {
	Action     Action `json:"action"`
	Quantity   int    `json:"quantity"`
	Confidence int    `json:"confidence"` // 0..100
	Reasoning  string `json:"reasoning"`
}

// Validate enforces the decision schema.
func (d TradeDecision) Validate() error {
	if !d.Action.Valid() {
		return fmt.Errorf("%w: invalid action %q", ErrMalformedDecision, d.Action)
	}
	if d.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d", ErrMalformedDecision, d.Quantity)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d out of range [0, 100]", ErrMalformedDecision, d.Confidence)
	}
	return nil
}

// HoldDecision builds a zero-quantity hold with the given reasoning.
func HoldDecision(confidence int, reasoning string) TradeDecision {
	return TradeDecision{
		Action:     ActionHold,
		Quantity:   0,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

// ExecutedTrade records what the executor actually filled for a decision.
type ExecutedTrade struct {
	Ticker    string  `json:"ticker"`
	Action    Action  `json:"action"`
	Requested int     `json:"requested"`
	Filled    int     `json:"filled"`
	Price     float64 `json:"price"`
	Cost      float64 `json:"cost"` // transaction cost charged to cash
}
