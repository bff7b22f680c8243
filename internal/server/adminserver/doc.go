// Package adminserver exposes the ClusterAdmin Connect RPC service the
// admin CLI talks to: Info (this node's own state), Nodes (known
// neighbors), and Meet (introduce a node by address).
package adminserver
