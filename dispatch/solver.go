package dispatch

// AgentOverview answers "which node owns this agent" (spec §4.H
// "Agent.get_agents_overview"), backed in practice by whatever store the
// cluster process keeps of agent->node assignment.
type AgentOverview interface {
	NodeOf(agentID string) (node string, known bool)
}

// UnknownNodeAttribution is the empty node name. SolverMap does not group
// agents under it: unknown agent_ids go under selfName (see SolverMap).
const UnknownNodeAttribution = ""

// SolverMap groups agentIDs by owning node_name (spec §4.H "Solver-node
// resolution"). Agents absent from the overview are grouped under
// selfName and also returned in unresolved, for the caller to flag with a
// distinct error on them (the dispatcher appends them to args'
// "error_agents").
func SolverMap(overview AgentOverview, agentIDs []string, selfName string) (solved map[string][]string, unresolved []string) {
	solved = make(map[string][]string)
	for _, id := range agentIDs {
		node, ok := overview.NodeOf(id)
		if !ok {
			unresolved = append(unresolved, id)
			solved[selfName] = append(solved[selfName], id)
			continue
		}
		solved[node] = append(solved[node], id)
	}
	return solved, unresolved
}
