package consensus

import "fmt"

// clusterInfo holds the static cluster membership (spec.md §1 — membership
// reconfiguration is out of scope, so this set never changes for the life
// of the process) and computes the majority threshold.
type clusterInfo struct {
	thisNodeID string
	peerIDs    []string
	size       int
	quorum     int
}

func newClusterInfo(thisNodeID string, peers map[string]string) (*clusterInfo, error) {
	if thisNodeID == "" {
		return nil, fmt.Errorf("thisNodeID must not be empty")
	}
	peerIDs := make([]string, 0, len(peers))
	for id := range peers {
		if id == thisNodeID {
			return nil, fmt.Errorf("peers must not contain this node's own id (%s)", thisNodeID)
		}
		peerIDs = append(peerIDs, id)
	}
	size := len(peerIDs) + 1
	return &clusterInfo{
		thisNodeID: thisNodeID,
		peerIDs:    peerIDs,
		size:       size,
		quorum:     quorumSizeForClusterSize(size),
	}, nil
}

// quorumSizeForClusterSize returns the majority threshold for a cluster of
// the given size: ⌊N/2⌋+1 over the total configured size, not the reachable
// subset (spec.md §4.3.1's fixed majority rule).
func quorumSizeForClusterSize(size int) int {
	return (size / 2) + 1
}

func (ci *clusterInfo) forEachPeer(f func(peerID string)) {
	for _, id := range ci.peerIDs {
		f(id)
	}
}
