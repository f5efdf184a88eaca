// Package rules implements ordered chains of predicates evaluated against a
// parsed intent before any funds are committed. Rules are side-effect-free
// with respect to chain state: they may read balances or allowances but
// never submit transactions.
package rules

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/models"
)

// ChainReader is the read-only chain access a rule is allowed to use.
type ChainReader interface {
	SignerAddress() common.Address
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Context carries the execution environment shared by all rules of one
// evaluation run.
type Context struct {
	chains map[int64]ChainReader
}

// NewContext builds a rule context over the given per-chain readers.
func NewContext(chains map[int64]ChainReader) *Context {
	return &Context{chains: chains}
}

// Chain returns the reader for a chain ID.
func (c *Context) Chain(chainID int64) (ChainReader, bool) {
	reader, ok := c.chains[chainID]
	return reader, ok
}

// Result is the outcome of a single rule: a success note or a failure
// reason. Exactly one of the two is set.
type Result struct {
	Note   string
	Reason string
}

// OK reports whether the rule passed.
func (r Result) OK() bool {
	return r.Reason == ""
}

// Pass builds a successful result with a note for the log.
func Pass(note string) Result {
	return Result{Note: note}
}

// Fail builds a failed result with the reason processing must stop.
func Fail(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Rule is a pure predicate over an intent. Rules must not mutate the intent
// or submit transactions.
type Rule func(ctx context.Context, intent *models.Intent, ec *Context) Result

// Evaluator runs an ordered rule chain with short-circuit semantics: the
// first failure aborts evaluation and its reason is returned.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds an evaluator over the given rules, evaluated in order.
func NewEvaluator(ruleChain ...Rule) *Evaluator {
	return &Evaluator{rules: ruleChain}
}

// Append adds protocol-specific rules after the existing chain.
func (e *Evaluator) Append(ruleChain ...Rule) {
	e.rules = append(e.rules, ruleChain...)
}

// Evaluate runs every rule in order. Success requires all rules to pass;
// the first failure is returned and later rules are never invoked.
func (e *Evaluator) Evaluate(ctx context.Context, intent *models.Intent, ec *Context) Result {
	for _, rule := range e.rules {
		if result := rule(ctx, intent, ec); !result.OK() {
			return result
		}
	}
	return Pass("all rules passed")
}
