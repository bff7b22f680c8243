package clustererr

import (
	"fmt"

	"github.com/tokmesh/cluster/internal/core/clusterid"
)

// MovedError signals that a key's slot is not owned by the local node. It is
// never surfaced to a client as a raw protocol error: the executor and the
// pub/sub broker intercept it and convert it into a MOVED redirection (or,
// for shard-channel subscriptions, a placeholder interleaved into a reply
// array) enriched with the owning node's address.
type MovedError struct {
	Slot clusterid.Slot
}

func (e *MovedError) Error() string {
	return fmt.Sprintf("MOVED %d", e.Slot)
}
