package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeStaleBound(t *testing.T) {
	now := time.Now()
	env := BroadcastEnvelope{Timestamp: now.Add(-59 * time.Second)}
	assert.False(t, env.Stale(now))

	env.Timestamp = now.Add(-61 * time.Second)
	assert.True(t, env.Stale(now))
}

func TestEnvelopeDroppedBy(t *testing.T) {
	env := BroadcastEnvelope{SourceInstanceID: "a", ExcludeInstanceID: "b"}
	assert.True(t, env.DroppedBy("a"), "self-echo")
	assert.True(t, env.DroppedBy("b"), "explicit exclusion")
	assert.False(t, env.DroppedBy("c"))

	// An empty exclusion never matches anything.
	env = BroadcastEnvelope{SourceInstanceID: "a"}
	assert.False(t, env.DroppedBy(""))
}

func TestCleanupCommandValidate(t *testing.T) {
	assert.NoError(t, CleanupCommand{Action: CleanupWarning1, Date: "2025-06-01"}.Validate())
	assert.NoError(t, CleanupCommand{Action: CleanupWarning2, Date: "2025-06-01"}.Validate())
	assert.NoError(t, CleanupCommand{Action: CleanupRun, Date: "2025-06-01"}.Validate())

	assert.ErrorIs(t, CleanupCommand{Action: "drop_tables", Date: "2025-06-01"}.Validate(), ErrInvalidCleanupCommand)
	assert.ErrorIs(t, CleanupCommand{Action: CleanupRun}.Validate(), ErrInvalidCleanupCommand)
	assert.ErrorIs(t, CleanupCommand{Action: CleanupRun, Date: "June 1st"}.Validate(), ErrInvalidCleanupCommand)
}
