package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimTransitions(t *testing.T) {
	allowed := [][2]string{
		{ClaimStatusReceived, ClaimStatusFundsChecked},
		{ClaimStatusReceived, ClaimStatusRejected},
		{ClaimStatusFundsChecked, ClaimStatusDebited},
		{ClaimStatusFundsChecked, ClaimStatusRejected},
		{ClaimStatusDebited, ClaimStatusTransferRequested},
		{ClaimStatusTransferRequested, ClaimStatusTransferConfirmed},
		{ClaimStatusTransferRequested, ClaimStatusTransferFailed},
		{ClaimStatusTransferFailed, ClaimStatusReversed},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionTo(tc[0], tc[1]), "%s -> %s should be allowed", tc[0], tc[1])
	}

	denied := [][2]string{
		{ClaimStatusReceived, ClaimStatusDebited},
		{ClaimStatusReceived, ClaimStatusTransferConfirmed},
		{ClaimStatusRejected, ClaimStatusFundsChecked},
		{ClaimStatusDebited, ClaimStatusTransferConfirmed},
		{ClaimStatusTransferConfirmed, ClaimStatusTransferFailed},
		{ClaimStatusTransferConfirmed, ClaimStatusReversed},
		{ClaimStatusReversed, ClaimStatusTransferFailed},
		{ClaimStatusTransferFailed, ClaimStatusTransferRequested},
	}
	for _, tc := range denied {
		assert.False(t, CanTransitionTo(tc[0], tc[1]), "%s -> %s should be denied", tc[0], tc[1])
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range []string{ClaimStatusRejected, ClaimStatusTransferConfirmed, ClaimStatusReversed} {
		_, ok := ValidClaimTransitions[status]
		assert.False(t, ok, "%s should be terminal", status)
	}
}
