package pubsub

import "strings"

// HandleClusterPubSub applies a PubSub frame received from another node
// (forwarded by the router) against the local broker, without
// re-broadcasting — it is already a broadcast receipt.
func (b *Broker) HandleClusterPubSub(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	switch strings.ToUpper(tokens[0]) {
	case "PUBLISH":
		if len(tokens) == 3 {
			b.Publish(tokens[1], tokens[2])
		}
	case "SPUBLISH":
		if len(tokens) == 3 {
			b.SPublish(tokens[1], tokens[2])
		}
	}
}
