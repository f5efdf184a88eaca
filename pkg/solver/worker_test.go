package solver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openintent-hq/solver/pkg/pipeline"
)

func TestRejectionStage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pipeline.ErrUnsupportedChain, "unsupported_chain"},
		{pipeline.ErrExpired, "expired"},
		{pipeline.ErrFilteredOut, "filtered"},
		{pipeline.ErrRuleRejected, "rule"},
		{pipeline.ErrInsufficientBalance, "balance"},
		{fmt.Errorf("sender blocked: %w", pipeline.ErrFilteredOut), "filtered"},
		{fmt.Errorf("boom"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rejectionStage(tt.err), "error: %v", tt.err)
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "approval", errorType(fmt.Errorf("token 0xabc: %w", pipeline.ErrApprovalFailed)))
	assert.Equal(t, "fill", errorType(fmt.Errorf("rpc timeout")))
}

func TestChainLabel(t *testing.T) {
	assert.Equal(t, "42161", chainLabel(42161))
}
