package canvas

import (
	"errors"
	"fmt"

	pkgerrors "notemesh/pkg/errors"
)

// ErrNoValidClusters is returned when no proposed group keeps a single
// existing node.
var ErrNoValidClusters = errors.New("clustering proposal has no group with existing nodes")

// ProposedCluster is one group of a clustering proposal. Name and Color are
// optional.
type ProposedCluster struct {
	Name    string   `json:"name,omitempty"`
	Color   string   `json:"color,omitempty"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

// Proposal is an ordered list of groups suggested by the clustering service.
type Proposal struct {
	Clusters []ProposedCluster `json:"clusters"`
}

// ReconcileResult is the graph produced by Reconcile.
type ReconcileResult struct {
	Nodes    []Node
	Edges    []Edge
	Clusters []Cluster
	// Assignments maps node id to cluster id.
	Assignments map[string]string
	// Generated holds the cluster edges created in this pass, in order.
	Generated []Edge

	DroppedNodeIDs int
	DroppedGroups  int
}

type clusterGroup struct {
	cluster Cluster
	members []string
}

// Reconcile folds proposal into the given graph without touching its inputs.
//
// Proposed ids that do not name an existing node are dropped, as is any
// group left without members. Every node loses its previous cluster fields
// and regains them only if a surviving group claims it; a node claimed by an
// earlier group is not reassigned by a later one. Manual edges are kept
// verbatim while old cluster edges are discarded. Each surviving group links
// its first member to every other member, skipping pairs already connected
// in either direction. The resulting edges are the manual edges followed by
// the generated ones.
func Reconcile(nodes []Node, edges []Edge, proposal Proposal) (*ReconcileResult, error) {
	existing := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		existing[n.ID] = true
	}

	result := &ReconcileResult{Assignments: make(map[string]string)}
	var groups []clusterGroup

	for i, pc := range proposal.Clusters {
		cluster := newProposedCluster(i, pc.Name, pc.Color)

		var members []string
		for _, id := range pc.NodeIDs {
			if !existing[id] {
				result.DroppedNodeIDs++
				continue
			}
			if _, taken := result.Assignments[id]; taken {
				continue
			}
			result.Assignments[id] = cluster.ID
			members = append(members, id)
		}
		if len(members) == 0 {
			result.DroppedGroups++
			continue
		}
		groups = append(groups, clusterGroup{cluster: cluster, members: members})
	}

	if len(groups) == 0 {
		return nil, pkgerrors.NewReconciliationError("No valid clusters were found for the current nodes").
			WithCode(pkgerrors.CodeNoValidClusters).
			WithCause(ErrNoValidClusters).
			WithDetail("proposed_groups", len(proposal.Clusters))
	}

	byID := make(map[string]Cluster, len(groups))
	result.Clusters = make([]Cluster, len(groups))
	for i, g := range groups {
		result.Clusters[i] = g.cluster
		byID[g.cluster.ID] = g.cluster
	}

	result.Nodes = make([]Node, len(nodes))
	for i, n := range nodes {
		rebuilt := n.Clone()
		rebuilt.Data.clearCluster()
		if clusterID, ok := result.Assignments[n.ID]; ok {
			rebuilt.Data.assignCluster(byID[clusterID])
		}
		result.Nodes[i] = rebuilt
	}

	connected := make(map[pairKey]bool)
	usedIDs := make(map[string]bool)
	manual := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !e.IsManual() {
			continue
		}
		manual = append(manual, e)
		connected[newPairKey(e.Source, e.Target)] = true
		usedIDs[e.ID] = true
	}

	for _, g := range groups {
		anchor := g.members[0]
		for _, member := range g.members[1:] {
			key := newPairKey(anchor, member)
			if connected[key] {
				continue
			}
			connected[key] = true
			id := uniqueEdgeID(usedIDs, fmt.Sprintf("%s-%s-%s", g.cluster.ID, anchor, member))
			result.Generated = append(result.Generated, Edge{
				ID:     id,
				Source: anchor,
				Target: member,
				Kind:   EdgeKindCluster,
			})
		}
	}

	result.Edges = append(manual, result.Generated...)
	return result, nil
}

// uniqueEdgeID returns base, or base with the first free numeric suffix when
// base is already in used, and marks the result as used.
func uniqueEdgeID(used map[string]bool, base string) string {
	id := base
	for n := 2; used[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	used[id] = true
	return id
}
