// Package clusterv1 provides Protocol Buffer definitions for the cluster
// admin RPC surface.
//
// This package backs the ClusterAdmin service the admin CLI talks to
// (Info, Nodes, Meet), exposed over Connect alongside the client and
// cluster-bus ports.
//
// To regenerate:
//
//	buf generate
package clusterv1
