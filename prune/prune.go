// Package prune shrinks an agent's message history to a token budget.
//
// The contract the rest of the engine depends on: a pruned history (a) fits
// the budget, (b) never separates a tool call from its matching tool
// result, and (c) preserves the relative order of surviving messages.
// Model providers reject histories with orphaned calls or results, so (b)
// holds at every budget.
package prune

import (
	"encoding/json"
	"sort"

	"github.com/hupe1980/agentcrew/core"
)

// TokenEstimator approximates the token cost of one message.
type TokenEstimator func(msg core.Message) int

// EstimateTokens is the default estimator: one token per four bytes of the
// message's serialized form, minimum one.
func EstimateTokens(msg core.Message) int {
	b, err := json.Marshal(msg)
	if err != nil {
		return 1
	}

	n := len(b) / 4
	if n < 1 {
		n = 1
	}

	return n
}

// Pruner is the context window collaborator contract.
type Pruner interface {
	Prune(history []core.Message, budget int) []core.Message
}

// Options configures an OldestFirst pruner.
type Options struct {
	Estimator TokenEstimator
}

// OldestFirst drops whole messages from the front of the history until the
// remainder fits the budget. Messages linked by tool call/result pairing
// form one atomic group and are dropped or kept together. The most recent
// group always survives, even over budget, so the agent never loses its
// current turn.
type OldestFirst struct {
	estimate TokenEstimator
}

// NewOldestFirst creates the default pruner.
func NewOldestFirst(optFns ...func(o *Options)) *OldestFirst {
	opts := Options{Estimator: EstimateTokens}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &OldestFirst{estimate: opts.Estimator}
}

// group is a set of history indices that must survive or die together.
type group struct {
	indices []int
	cost    int
}

// Prune implements Pruner.
func (p *OldestFirst) Prune(history []core.Message, budget int) []core.Message {
	if len(history) == 0 {
		return history
	}

	groups := p.groupHistory(history)

	total := 0
	for _, g := range groups {
		total += g.cost
	}

	drop := 0
	for total > budget && drop < len(groups)-1 {
		total -= groups[drop].cost
		drop++
	}

	var keep []int
	for _, g := range groups[drop:] {
		keep = append(keep, g.indices...)
	}

	// Groups can interleave when results arrive late; restore history order.
	sort.Ints(keep)

	out := make([]core.Message, 0, len(keep))
	for _, i := range keep {
		out = append(out, history[i])
	}

	return out
}

// groupHistory partitions the history into atomic groups in order of each
// group's first message. A message carrying tool results joins the group
// that declared the calls it answers.
func (p *OldestFirst) groupHistory(history []core.Message) []group {
	var groups []group

	callGroup := make(map[string]int) // tool call id -> group index

	for i, msg := range history {
		target := -1

		for _, id := range msg.ResultIDs() {
			if gi, ok := callGroup[id]; ok {
				target = gi
				break
			}
		}

		if target < 0 {
			groups = append(groups, group{})
			target = len(groups) - 1
		}

		groups[target].indices = append(groups[target].indices, i)
		groups[target].cost += p.estimate(msg)

		for _, id := range msg.CalledIDs() {
			callGroup[id] = target
		}
	}

	return groups
}
