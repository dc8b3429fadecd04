package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldi/tend/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{ID: id, Title: id, WaitingForTaskIDs: deps}
}

func done(id string, deps ...string) *models.Task {
	t := task(id, deps...)
	t.Completed = true
	t.Status = models.TaskStatusCompleted
	return t
}

func TestDependenciesMet(t *testing.T) {
	g := New([]*models.Task{
		done("a"),
		task("b", "a"),
		task("c", "b"),
	})

	assert.True(t, g.DependenciesMet(g.Task("b")))
	assert.False(t, g.DependenciesMet(g.Task("c")))
	assert.True(t, g.DependenciesMet(g.Task("a")), "no dependencies is vacuously met")
}

func TestDanglingReferenceBlocksForever(t *testing.T) {
	// The blocker was deleted; its waiter must stay blocked rather than
	// silently unblock.
	g := New([]*models.Task{task("a", "ghost-id")})

	assert.False(t, g.DependenciesMet(g.Task("a")))
	assert.Empty(t, g.PendingDependencies(g.Task("a")), "nothing to display for a dangling edge")

	stats := g.Stats()
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 0, stats.Ready)
}

func TestPendingDependencies(t *testing.T) {
	g := New([]*models.Task{
		done("a"),
		task("b"),
		task("c", "a", "b", "ghost"),
	})

	assert.Equal(t, []string{"b"}, g.PendingDependencies(g.Task("c")))
}

func TestLevels(t *testing.T) {
	g := New([]*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d", "a", "c"),
	})

	levels := g.Levels()
	assert.Equal(t, 0, levels["a"])
	assert.Equal(t, 1, levels["b"])
	assert.Equal(t, 2, levels["c"])
	assert.Equal(t, 3, levels["d"], "deepest incomplete dependency wins")
}

func TestLevelsSkipCompletedDependencies(t *testing.T) {
	g := New([]*models.Task{
		done("a"),
		task("b", "a"),
		task("c", "b"),
	})

	levels := g.Levels()
	assert.Equal(t, 0, levels["b"], "completed blockers contribute no depth")
	assert.Equal(t, 1, levels["c"])
}

func TestLevelsCycleSaturates(t *testing.T) {
	g := New([]*models.Task{
		task("a", "b"),
		task("b", "a"),
		task("c"),
	})

	levels := g.Levels()
	for id, lvl := range levels {
		assert.LessOrEqual(t, lvl, 3, "level of %s exceeds task count", id)
	}
	assert.Equal(t, 0, levels["c"])
}

func TestPositions(t *testing.T) {
	g := New([]*models.Task{
		task("a"),
		task("b"),
		task("c", "a"),
	})

	positions := g.Positions()
	require.Len(t, positions, 3)

	assert.Equal(t, Position{X: 0, Y: 0}, positions["a"])
	assert.Equal(t, Position{X: nodeWidth + gapX, Y: 0}, positions["b"], "second slot in level 0")
	assert.Equal(t, Position{X: 0, Y: nodeHeight + gapY}, positions["c"])
}

func TestChains(t *testing.T) {
	g := New([]*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"),
		task("e", "d"),
		task("f"), // isolated, never appears
	})

	chains := g.Chains()
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"a", "b", "c"}, chains[0], "longest chain first")
	assert.Equal(t, []string{"d", "e"}, chains[1])
}

func TestChainsSharedVisited(t *testing.T) {
	// Two roots converge on c: the first root to reach it claims it, so
	// every task appears in at most one chain.
	g := New([]*models.Task{
		task("a"),
		task("b"),
		task("c", "a", "b"),
	})

	chains := g.Chains()
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"a", "c"}, chains[0])

	seen := make(map[string]int)
	for _, chain := range chains {
		for _, id := range chain {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "%s appears in more than one chain", id)
	}
}

func TestChainsDropFanOutBranches(t *testing.T) {
	// One root fans out to two waiters: only the first branch is walked,
	// and the waiter on the dropped branch is in no chain since it is not
	// a root itself.
	g := New([]*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "a"),
	})

	chains := g.Chains()
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"a", "b"}, chains[0])
}

func TestCriticalPath(t *testing.T) {
	g := New([]*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d", "c"),
		task("e"),
		task("f", "e"),
	})

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.CriticalPath())
}

func TestCriticalPathTieBreaksByInsertionOrder(t *testing.T) {
	g := New([]*models.Task{
		task("a"),
		task("b", "a"),
		task("x"),
		task("y", "x"),
	})

	assert.Equal(t, []string{"a", "b"}, g.CriticalPath())
}

func TestCriticalPathEmpty(t *testing.T) {
	g := New([]*models.Task{task("a"), task("b")})
	assert.Len(t, g.CriticalPath(), 1, "no edges leaves single-node paths only")

	assert.Empty(t, New(nil).CriticalPath())
}

func TestCriticalPathSurvivesCycle(t *testing.T) {
	g := New([]*models.Task{
		task("a", "b"),
		task("b", "a"),
		task("c"),
		task("d", "c"),
	})

	path := g.CriticalPath()
	assert.Equal(t, []string{"c", "d"}, path, "cycle members are not roots and cannot trap the search")
}

func TestStats(t *testing.T) {
	g := New([]*models.Task{
		done("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"),
	})

	stats := g.Stats()
	assert.Equal(t, 4, stats.TotalTasks)
	assert.Equal(t, 2, stats.WithDeps)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 2, stats.Ready)

	// Every incomplete task is either blocked or ready; completed tasks
	// with met dependencies are neither.
	incomplete := 0
	for _, id := range []string{"a", "b", "c", "d"} {
		if !g.Task(id).Completed {
			incomplete++
		}
	}
	assert.Equal(t, incomplete, stats.Blocked+stats.Ready)
}

func TestStatsForProject(t *testing.T) {
	a := done("a")
	a.ProjectID = "p1"
	b := task("b", "a")
	b.ProjectID = "p2"
	c := task("c")
	c.ProjectID = "p1"

	g := New([]*models.Task{a, b, c})

	stats := g.StatsFor("p1")
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.Ready, "completed a is not ready")

	stats = g.StatsFor("p2")
	assert.Equal(t, 1, stats.TotalTasks)
	assert.Equal(t, 1, stats.Ready, "blocker in another project still counts as met")
}
