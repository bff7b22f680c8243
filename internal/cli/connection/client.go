// Package connection provides connection management for tokmesh-cli.
package connection

import (
	"net/http"
	"strings"
	"time"

	"github.com/tokmesh/cluster/api/proto/v1/clusterv1connect"
)

// NewAdminClient builds a ClusterAdmin Connect RPC client against server
// (host:port of a node's admin port). Connect speaks plain HTTP/1.1 or h2c,
// so no TLS setup is required for the common case of an operator on the
// same network as the cluster.
func NewAdminClient(server string) clusterv1connect.ClusterAdminServiceClient {
	baseURL := server
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	return clusterv1connect.NewClusterAdminServiceClient(httpClient, baseURL)
}
