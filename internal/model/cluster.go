package model

import "sort"

// Cluster is a named grouping of nodes. Clusters are derived from the
// cluster field of registered nodes and are never independently stored.
type Cluster struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
}

// ClustersFromNodes derives the cluster list from a registry snapshot,
// ordered by cluster name with members sorted for stable output.
func ClustersFromNodes(nodes []*NodeConfig) []*Cluster {
	byName := make(map[string][]string)
	for _, n := range nodes {
		byName[n.Cluster] = append(byName[n.Cluster], n.Name)
	}

	clusters := make([]*Cluster, 0, len(byName))
	for name, members := range byName {
		sort.Strings(members)
		clusters = append(clusters, &Cluster{Name: name, Nodes: members})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })

	return clusters
}
