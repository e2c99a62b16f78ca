package projector

import (
	"fmt"
	"strings"
)

// AckMode decides whether a failed event is dropped or redelivered.
type AckMode string

const (
	// AckAuto acks every message regardless of the outcome.
	AckAuto AckMode = "auto"
	// AckAfterApply acks only applied messages; failures go through retry
	// and end up on the poison queue.
	AckAfterApply AckMode = "after_apply"
)

func ParseAckMode(value string) (AckMode, error) {
	switch mode := AckMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "", AckAuto:
		return AckAuto, nil
	case AckAfterApply:
		return AckAfterApply, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAckMode, value)
	}
}
