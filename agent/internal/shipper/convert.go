package shipper

import "github.com/wattboard/wattboard/pkg/meterpb"

// collect returns first plus whatever is already buffered, up to limit
// readings in total. It never blocks.
func collect(first *meterpb.Reading, buf <-chan *meterpb.Reading, limit int) []*meterpb.Reading {
	out := []*meterpb.Reading{first}
	for len(out) < limit {
		select {
		case r := <-buf:
			out = append(out, r)
		default:
			return out
		}
	}
	return out
}

// newBatch wraps readings for one Push call. Readings of the same building
// are kept in the order they were shipped, which the server requires.
func newBatch(agentID string, readings []*meterpb.Reading) *meterpb.Batch {
	return &meterpb.Batch{AgentID: agentID, Readings: readings}
}
