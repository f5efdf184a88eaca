// Package filter implements allow/block list evaluation for observed intents.
package filter

import (
	"strconv"
	"strings"
)

// Wildcard matches any value in a list item field.
const Wildcard = "*"

// ListItem matches a tuple of sender, destination domain and recipient.
// Each field holds one or more values, or the wildcard. An empty field
// matches nothing.
type ListItem struct {
	SenderAddress     []string `json:"senderAddress"`
	DestinationDomain []string `json:"destinationDomain"`
	RecipientAddress  []string `json:"recipientAddress"`
}

// Candidate is the tuple extracted from an intent and checked against the
// configured lists.
type Candidate struct {
	SenderAddress     string
	DestinationDomain int64
	RecipientAddress  string
}

// AllowBlockLists is the eligibility configuration for one protocol
// instance. Block rules take precedence over allow rules; a non-empty allow
// list switches the filter to deny-by-default.
type AllowBlockLists struct {
	AllowList []ListItem `json:"allowList"`
	BlockList []ListItem `json:"blockList"`
}

// IsAllowed reports whether the candidate tuple passes the lists.
func (l AllowBlockLists) IsAllowed(c Candidate) bool {
	allowed := len(l.AllowList) == 0
	for _, item := range l.AllowList {
		if item.matches(c) {
			allowed = true
			break
		}
	}

	for _, item := range l.BlockList {
		if item.matches(c) {
			return false
		}
	}

	return allowed
}

func (item ListItem) matches(c Candidate) bool {
	return matchesAddress(item.SenderAddress, c.SenderAddress) &&
		matchesDomain(item.DestinationDomain, c.DestinationDomain) &&
		matchesAddress(item.RecipientAddress, c.RecipientAddress)
}

// matchesAddress compares hex addresses case-insensitively.
func matchesAddress(values []string, addr string) bool {
	for _, v := range values {
		if v == Wildcard || strings.EqualFold(v, addr) {
			return true
		}
	}
	return false
}

func matchesDomain(values []string, domain int64) bool {
	want := strconv.FormatInt(domain, 10)
	for _, v := range values {
		if v == Wildcard || v == want {
			return true
		}
	}
	return false
}
