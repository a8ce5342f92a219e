package limbo

import "fmt"

// peerPositions is a monotonic mapping from peer id to the highest log
// position that peer has acknowledged. Entries are never deleted; they
// persist for the lifetime of the process.
type peerPositions struct {
	positions map[uint32]int64
}

func newPeerPositions() *peerPositions {
	return &peerPositions{positions: make(map[uint32]int64)}
}

// follow records a new acknowledged position for peerID and returns the
// position that peer was previously known to be at. pos must be no less
// than the peer's current position; the replication layer is responsible
// for never violating that.
func (p *peerPositions) follow(peerID uint32, pos int64) int64 {
	prev := p.positions[peerID]
	if pos < prev {
		panic(fmt.Sprintf("synclimbo: peer %d position went backwards: %d -> %d", peerID, prev, pos))
	}
	p.positions[peerID] = pos
	return prev
}

// current returns the highest position peerID has acknowledged so far.
func (p *peerPositions) current(peerID uint32) int64 {
	return p.positions[peerID]
}

// countAtOrAbove returns the number of peers whose last known position is
// at or beyond pos. Used only to rebuild ack_count in assignLocalLSN.
func (p *peerPositions) countAtOrAbove(pos int64) int {
	n := 0
	for _, v := range p.positions {
		if v >= pos {
			n++
		}
	}
	return n
}

// snapshot returns a copy of the whole position map, for external readers
// such as the admin API, who must not observe mutations made after the
// call returns.
func (p *peerPositions) snapshot() map[uint32]int64 {
	out := make(map[uint32]int64, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out
}
