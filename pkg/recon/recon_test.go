package recon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hearthsync/pkg/models"
)

func TestTrackerExactRollback(t *testing.T) {
	tr := NewTracker()
	tr.Add("c1", "p1", models.MutCommentAdded)
	tr.Add("c2", "p1", models.MutReactionAdded)
	tr.Add("c3", "p2", models.MutCommentAdded)

	tr.Reject("c2", "rate_limited")

	pending := tr.Pending()
	require.Len(t, pending, 2, "only the rejected mutation leaves pending")
	for _, m := range pending {
		require.Equal(t, StatePending, m.State)
		require.NotEqual(t, "c2", m.ClientID)
	}

	resolved := tr.CollectResolved()
	require.Len(t, resolved, 1)
	require.Equal(t, StateRolledBack, resolved[0].State)
	require.Equal(t, "rate_limited", resolved[0].Reason)
}

func TestTrackerConfirmAssignsVersion(t *testing.T) {
	tr := NewTracker()
	tr.Add("c1", "p1", models.MutCommentAdded)
	tr.Confirm("c1", 9)

	require.Empty(t, tr.Pending())
	resolved := tr.CollectResolved()
	require.Len(t, resolved, 1)
	require.Equal(t, StateConfirmed, resolved[0].State)
	require.Equal(t, uint64(9), resolved[0].Version)

	// second collect is empty; unknown IDs are ignored
	require.Empty(t, tr.CollectResolved())
	tr.Confirm("ghost", 1)
	tr.Reject("ghost", "x")
	require.Empty(t, tr.CollectResolved())
}

func TestTrackerObserveConfirmsOwnComment(t *testing.T) {
	tr := NewTracker()
	tr.Add("c1", "p1", models.MutCommentAdded)
	tr.Observe(&models.Event{Type: models.MutCommentAdded, Post: "p1", Version: 4}, "c1")
	resolved := tr.CollectResolved()
	require.Len(t, resolved, 1)
	require.Equal(t, uint64(4), resolved[0].Version)
}

func TestConnectionLifecycle(t *testing.T) {
	c := NewConnection()
	require.Equal(t, Disconnected, c.State())

	c.Connecting()
	// events before the snapshot are not applicable
	apply, degraded := c.Apply("p1", 1)
	require.False(t, apply)
	require.False(t, degraded)

	c.SnapshotApplied(map[string]uint64{"p1": 3})
	require.Equal(t, Subscribed, c.State())

	apply, degraded = c.Apply("p1", 4)
	require.True(t, apply)
	require.False(t, degraded)
	require.Equal(t, uint64(4), c.LastSeen("p1"))
}

func TestConnectionSkipsDuplicates(t *testing.T) {
	c := NewConnection()
	c.SnapshotApplied(map[string]uint64{"p1": 3})

	apply, degraded := c.Apply("p1", 3)
	require.False(t, apply, "duplicate must be skipped")
	require.False(t, degraded)
	require.Equal(t, Subscribed, c.State())
}

func TestConnectionGapDegrades(t *testing.T) {
	c := NewConnection()
	c.SnapshotApplied(map[string]uint64{"p1": 3})

	apply, degraded := c.Apply("p1", 6)
	require.False(t, apply)
	require.True(t, degraded)
	require.Equal(t, Degraded, c.State())

	// degraded stream applies nothing until resynced
	apply, degraded = c.Apply("p1", 4)
	require.False(t, apply)
	require.True(t, degraded)

	// a fresh snapshot repairs the stream
	c.SnapshotApplied(map[string]uint64{"p1": 7})
	require.Equal(t, Subscribed, c.State())
	apply, _ = c.Apply("p1", 8)
	require.True(t, apply)
}

func TestConnectionUnknownPostFirstEventApplies(t *testing.T) {
	// a post created after the snapshot has no baseline; its very first
	// event is applicable, not a gap
	c := NewConnection()
	c.SnapshotApplied(map[string]uint64{"p1": 3})
	apply, degraded := c.Apply("p-new", 1)
	require.True(t, apply)
	require.False(t, degraded)
}

func TestConnectionUnknownPostMidStreamDegrades(t *testing.T) {
	// first sighting at version 5 means versions 1..4 were missed; that is
	// a gap, not a fresh post
	c := NewConnection()
	c.SnapshotApplied(map[string]uint64{"p1": 3})
	apply, degraded := c.Apply("p-new", 5)
	require.False(t, apply)
	require.True(t, degraded)
	require.Equal(t, Degraded, c.State())
}
