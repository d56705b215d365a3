package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterCoversHashCoversEverythingBeneath(t *testing.T) {
	assert.True(t, FilterCovers("a/#", "a/b/c"))
	assert.True(t, FilterCovers("a/#", "a/+"))
	assert.True(t, FilterCovers("#", "anything/at/all"))
}

func TestFilterCoversPlusCoversOneLiteralLevel(t *testing.T) {
	assert.True(t, FilterCovers("a/+/c", "a/b/c"))
	assert.False(t, FilterCovers("a/+/c", "a/b/c/d"))
}

func TestFilterCoversRequestWiderThanRuleIsDenied(t *testing.T) {
	assert.False(t, FilterCovers("a/b", "a/+"))
	assert.False(t, FilterCovers("a/b/c", "a/#"))
	assert.False(t, FilterCovers("a/+/c", "a/#"))
}

func TestFilterCoversExactMatch(t *testing.T) {
	assert.True(t, FilterCovers("a/b/c", "a/b/c"))
	assert.False(t, FilterCovers("a/b/c", "a/b/d"))
}

func TestFilterCoversLiteralPublishTopic(t *testing.T) {
	// A literal PUBLISH topic can never itself contain wildcard
	// characters, so FilterCovers degrades to plain Matches semantics.
	assert.True(t, FilterCovers("a/#", "a/x/y"))
	assert.False(t, FilterCovers("a/b/#", "a/x/y"))
}
