package workflow

// depGraph is the adjacency structure over task dependencies. Edges point
// from a task to the tasks it depends on.
type depGraph struct {
	// deps[taskID] = IDs the task depends on, in declaration order
	deps map[string][]string
}

func newDepGraph() *depGraph {
	return &depGraph{deps: make(map[string][]string)}
}

// addEdge records "taskID depends on dependsOnID". Cycles are not rejected
// here; detection is deferred to validation.
func (g *depGraph) addEdge(taskID, dependsOnID string) {
	g.deps[taskID] = append(g.deps[taskID], dependsOnID)
}

// dependenciesOf returns the dependency list for a task.
func (g *depGraph) dependenciesOf(taskID string) []string {
	return g.deps[taskID]
}

// dfsMark is the traversal marker used by cycle detection.
type dfsMark uint8

const (
	markUnvisited dfsMark = iota
	markInProgress
	markDone
)

// findCycle detects a cycle over the given task IDs using an iterative DFS
// with in-progress and done mark sets. It returns the ID of a task on a
// cycle, or "" when the graph is acyclic. The explicit stack avoids
// recursion-depth limits on large graphs.
func (g *depGraph) findCycle(taskIDs []string) string {
	marks := make(map[string]dfsMark, len(taskIDs))

	type frame struct {
		id   string
		next int
	}

	for _, start := range taskIDs {
		if marks[start] != markUnvisited {
			continue
		}

		stack := []frame{{id: start}}
		marks[start] = markInProgress

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.deps[top.id]

			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++

				switch marks[dep] {
				case markInProgress:
					// Back edge to a node on the traversal stack.
					return dep
				case markUnvisited:
					marks[dep] = markInProgress
					stack = append(stack, frame{id: dep})
				}
				continue
			}

			marks[top.id] = markDone
			stack = stack[:len(stack)-1]
		}
	}

	return ""
}
