// Package graph derives blocking and structural state from a task set's
// "waits for" edges. A task waiting on another produces the forward edge
// blocker -> waiter: the blocker must complete before the waiter is
// unblocked. Nothing here mutates tasks or stores derived state; every
// result is recomputed from the tasks handed to New.
package graph

import "github.com/ldi/tend/pkg/models"

// Node layout constants for Positions.
const (
	nodeWidth  = 180
	nodeHeight = 80
	gapX       = 40
	gapY       = 60
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Stats struct {
	TotalTasks int `json:"total_tasks"`
	WithDeps   int `json:"with_deps"`
	Blocked    int `json:"blocked"`
	Ready      int `json:"ready"`
}

// Graph is a single analysis pass over one task set. All traversal state is
// scoped to the Graph or to the individual call, so instances are cheap,
// reentrant and safe to discard after use.
type Graph struct {
	tasks      []*models.Task
	byID       map[string]*models.Task
	dependents map[string][]string // blocker ID -> waiter IDs, insertion order
}

func New(tasks []*models.Task) *Graph {
	g := &Graph{
		tasks:      tasks,
		byID:       make(map[string]*models.Task, len(tasks)),
		dependents: make(map[string][]string),
	}
	for _, t := range tasks {
		g.byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.WaitingForTaskIDs {
			if _, exists := g.byID[dep]; exists {
				g.dependents[dep] = append(g.dependents[dep], t.ID)
			}
		}
	}
	return g
}

// Task returns the task with the given ID, or nil if it isn't in the graph.
func (g *Graph) Task(id string) *models.Task {
	return g.byID[id]
}

// DependenciesMet reports whether every task t waits on exists and is
// completed. A dangling reference fails closed: a task pointing at a
// deleted blocker stays blocked rather than silently unblocking.
func (g *Graph) DependenciesMet(t *models.Task) bool {
	for _, dep := range t.WaitingForTaskIDs {
		blocker, exists := g.byID[dep]
		if !exists || !blocker.Completed {
			return false
		}
	}
	return true
}

// PendingDependencies returns the subset of t's dependency IDs that resolve
// to an existing, incomplete task. Dangling references are omitted; they
// block the task (see DependenciesMet) but there is nothing to display.
func (g *Graph) PendingDependencies(t *models.Task) []string {
	var pending []string
	for _, dep := range t.WaitingForTaskIDs {
		if blocker, exists := g.byID[dep]; exists && !blocker.Completed {
			pending = append(pending, dep)
		}
	}
	return pending
}

// Levels computes each task's depth in the dependency DAG: 0 for tasks with
// no incomplete dependencies, otherwise 1 + the deepest incomplete
// dependency. Results are memoized within the call. A task revisited while
// its own level is still being computed is on a cycle; its level saturates
// at the task count so rendering stays bounded instead of recursing
// forever.
func (g *Graph) Levels() map[string]int {
	levels := make(map[string]int, len(g.tasks))
	inProgress := make(map[string]bool)
	for _, t := range g.tasks {
		g.level(t.ID, levels, inProgress)
	}
	return levels
}

func (g *Graph) level(id string, levels map[string]int, inProgress map[string]bool) int {
	if lvl, done := levels[id]; done {
		return lvl
	}
	if inProgress[id] {
		return len(g.tasks)
	}

	t, exists := g.byID[id]
	if !exists {
		return 0
	}

	inProgress[id] = true
	lvl := 0
	for _, dep := range t.WaitingForTaskIDs {
		blocker, ok := g.byID[dep]
		if !ok || blocker.Completed {
			continue
		}
		if depLvl := g.level(dep, levels, inProgress) + 1; depLvl > lvl {
			lvl = depLvl
		}
	}
	delete(inProgress, id)

	if lvl > len(g.tasks) {
		lvl = len(g.tasks)
	}
	levels[id] = lvl
	return lvl
}

// Positions assigns pixel coordinates for graph layout: one horizontal row
// per level, slots in task insertion order within the row.
func (g *Graph) Positions() map[string]Position {
	levels := g.Levels()

	slot := make(map[int]int)
	positions := make(map[string]Position, len(g.tasks))
	for _, t := range g.tasks {
		lvl := levels[t.ID]
		positions[t.ID] = Position{
			X: slot[lvl] * (nodeWidth + gapX),
			Y: lvl * (nodeHeight + gapY),
		}
		slot[lvl]++
	}
	return positions
}

// Chains returns maximal forward paths of task IDs, starting from roots
// (tasks with no in-graph dependencies) and following blocker -> waiter
// edges. A single visited set is shared across the whole call, so a task
// reachable from several roots appears only in the chain from the first
// root that reaches it; that keeps every task in at most one chain. Each
// step follows a single dependent, so when a task fans out to several
// waiters only the first branch is walked and a non-root task on a
// dropped branch appears in no chain at all. Chains shorter than two
// tasks are dropped, and the result is ordered longest first.
func (g *Graph) Chains() [][]string {
	visited := make(map[string]bool)
	var chains [][]string

	for _, t := range g.tasks {
		if !g.isRoot(t) || visited[t.ID] {
			continue
		}
		chain := g.walkChain(t.ID, visited)
		if len(chain) >= 2 {
			chains = append(chains, chain)
		}
	}

	// Stable by construction: equal lengths keep traversal order.
	for i := 1; i < len(chains); i++ {
		for j := i; j > 0 && len(chains[j]) > len(chains[j-1]); j-- {
			chains[j], chains[j-1] = chains[j-1], chains[j]
		}
	}
	return chains
}

// walkChain extends one chain depth-first along the first unvisited
// dependent at each step.
func (g *Graph) walkChain(id string, visited map[string]bool) []string {
	visited[id] = true
	chain := []string{id}
	for _, next := range g.dependents[id] {
		if !visited[next] {
			chain = append(chain, g.walkChain(next, visited)...)
			break
		}
	}
	return chain
}

// CriticalPath returns the longest forward path by node count, enumerating
// every maximal path from every root via depth-first search with
// backtracking. Ties go to whichever path the traversal encounters first,
// which follows task insertion order.
func (g *Graph) CriticalPath() []string {
	var longest []string
	path := []string{}
	onPath := make(map[string]bool)

	var dfs func(id string)
	dfs = func(id string) {
		path = append(path, id)
		onPath[id] = true

		extended := false
		for _, next := range g.dependents[id] {
			if !onPath[next] {
				extended = true
				dfs(next)
			}
		}
		if !extended && len(path) > len(longest) {
			longest = append([]string(nil), path...)
		}

		delete(onPath, id)
		path = path[:len(path)-1]
	}

	for _, t := range g.tasks {
		if g.isRoot(t) {
			dfs(t.ID)
		}
	}
	return longest
}

// isRoot reports whether the task has no in-graph dependencies: nothing it
// waits on exists in the task set, so it has zero in-degree in the forward
// graph.
func (g *Graph) isRoot(t *models.Task) bool {
	for _, dep := range t.WaitingForTaskIDs {
		if _, exists := g.byID[dep]; exists {
			return false
		}
	}
	return true
}

// StatsFor counts dependency state over the task set, optionally filtered
// by project. Blocked counts every task failing DependenciesMet; Ready
// counts incomplete tasks whose dependencies are all met, so zero-dep open
// tasks are ready. Readiness is evaluated against the full graph even when
// filtering, since blockers may live in other projects.
func (g *Graph) StatsFor(projectID string) Stats {
	var s Stats
	for _, t := range g.tasks {
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		s.TotalTasks++
		if len(t.WaitingForTaskIDs) > 0 {
			s.WithDeps++
		}
		if !g.DependenciesMet(t) {
			s.Blocked++
		} else if !t.Completed {
			s.Ready++
		}
	}
	return s
}

// Stats counts dependency state over the whole task set.
func (g *Graph) Stats() Stats {
	return g.StatsFor("")
}
