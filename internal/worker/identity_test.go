package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveIdentity_SuffixesLocalIP(t *testing.T) {
	got := ResolveIdentity("executor-1")
	assert.True(t, strings.HasPrefix(got, "executor-1-"))
	assert.Greater(t, len(got), len("executor-1-"))
}
