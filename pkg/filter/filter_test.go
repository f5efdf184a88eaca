package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	sender1    = "0x1111111111111111111111111111111111111111"
	sender2    = "0x2222222222222222222222222222222222222222"
	recipient1 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func candidate(sender string) Candidate {
	return Candidate{
		SenderAddress:     sender,
		DestinationDomain: 42161,
		RecipientAddress:  recipient1,
	}
}

func TestEmptyListsAllowEverything(t *testing.T) {
	lists := AllowBlockLists{}
	assert.True(t, lists.IsAllowed(candidate(sender1)))
	assert.True(t, lists.IsAllowed(candidate(sender2)))
}

func TestAllowListDeniesByDefault(t *testing.T) {
	lists := AllowBlockLists{
		AllowList: []ListItem{
			{
				SenderAddress:     []string{sender1},
				DestinationDomain: []string{Wildcard},
				RecipientAddress:  []string{Wildcard},
			},
		},
	}

	assert.True(t, lists.IsAllowed(candidate(sender1)))
	assert.False(t, lists.IsAllowed(candidate(sender2)))
}

func TestBlockListTakesPrecedence(t *testing.T) {
	lists := AllowBlockLists{
		AllowList: []ListItem{
			{
				SenderAddress:     []string{sender1},
				DestinationDomain: []string{Wildcard},
				RecipientAddress:  []string{Wildcard},
			},
		},
		BlockList: []ListItem{
			{
				SenderAddress:     []string{sender1},
				DestinationDomain: []string{Wildcard},
				RecipientAddress:  []string{Wildcard},
			},
		},
	}

	assert.False(t, lists.IsAllowed(candidate(sender1)))
}

func TestAddressMatchingIsCaseInsensitive(t *testing.T) {
	lists := AllowBlockLists{
		AllowList: []ListItem{
			{
				SenderAddress:     []string{"0x1111111111111111111111111111111111111111"},
				DestinationDomain: []string{"42161"},
				RecipientAddress:  []string{Wildcard},
			},
		},
	}

	c := candidate("0x1111111111111111111111111111111111111111")
	c.SenderAddress = "0x1111111111111111111111111111111111111111"
	assert.True(t, lists.IsAllowed(c))

	upper := candidate(sender1)
	upper.SenderAddress = "0X1111111111111111111111111111111111111111"
	assert.True(t, lists.IsAllowed(upper))
}

func TestDomainMismatchFailsAllowItem(t *testing.T) {
	lists := AllowBlockLists{
		AllowList: []ListItem{
			{
				SenderAddress:     []string{sender1},
				DestinationDomain: []string{"10"},
				RecipientAddress:  []string{Wildcard},
			},
		},
	}

	c := candidate(sender1)
	c.DestinationDomain = 42161
	assert.False(t, lists.IsAllowed(c))

	c.DestinationDomain = 10
	assert.True(t, lists.IsAllowed(c))
}

func TestBlockListOnlyBlocksMatchingTuple(t *testing.T) {
	lists := AllowBlockLists{
		BlockList: []ListItem{
			{
				SenderAddress:     []string{sender2},
				DestinationDomain: []string{Wildcard},
				RecipientAddress:  []string{Wildcard},
			},
		},
	}

	assert.True(t, lists.IsAllowed(candidate(sender1)))
	assert.False(t, lists.IsAllowed(candidate(sender2)))
}
