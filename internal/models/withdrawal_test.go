package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to string }{
		{WithdrawalPending, WithdrawalProcessing},
		{WithdrawalPending, WithdrawalCanceled},
		{WithdrawalProcessing, WithdrawalPaid},
		{WithdrawalProcessing, WithdrawalFailed},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to string }{
		{WithdrawalPending, WithdrawalPaid},
		{WithdrawalPending, WithdrawalFailed},
		{WithdrawalProcessing, WithdrawalPending},
		{WithdrawalProcessing, WithdrawalCanceled},
		{WithdrawalPaid, WithdrawalProcessing},
		{WithdrawalPaid, WithdrawalFailed},
		{WithdrawalFailed, WithdrawalProcessing},
		{WithdrawalCanceled, WithdrawalPending},
		{WithdrawalPaid, WithdrawalPaid},
		{"UNKNOWN", WithdrawalPaid},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(WithdrawalPaid))
	assert.True(t, IsTerminalStatus(WithdrawalFailed))
	assert.True(t, IsTerminalStatus(WithdrawalCanceled))
	assert.False(t, IsTerminalStatus(WithdrawalPending))
	assert.False(t, IsTerminalStatus(WithdrawalProcessing))
	assert.False(t, IsTerminalStatus("UNKNOWN"))
}
