package wsfanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTopic(t *testing.T) {
	assert.True(t, ValidTopic(TopicInbox))
	assert.True(t, ValidTopic(TopicSmartInboxes))
	assert.False(t, ValidTopic(Topic("Bogus")))
}

func TestRequiresInboxACL(t *testing.T) {
	assert.True(t, requiresInboxACL(TopicInbox))
	assert.True(t, requiresInboxACL(TopicSmartInboxes))
	assert.False(t, requiresInboxACL(TopicSheet))
}

func TestConnectionMatchesWildcardSubtopic(t *testing.T) {
	c := newConnection("c1", nil)
	c.addSubscription(TopicInbox, "")
	assert.True(t, c.matches(TopicInbox, "inbox::a::b::false"))
	assert.False(t, c.matches(TopicSheet, ""))
}

func TestConnectionMatchesExactSubtopic(t *testing.T) {
	c := newConnection("c1", nil)
	c.addSubscription(TopicInbox, "inbox::a::b::false")
	assert.True(t, c.matches(TopicInbox, "inbox::a::b::false"))
	assert.False(t, c.matches(TopicInbox, "inbox::other::false"))

	c.removeSubscription(TopicInbox, "inbox::a::b::false")
	assert.False(t, c.matches(TopicInbox, "inbox::a::b::false"))
}
