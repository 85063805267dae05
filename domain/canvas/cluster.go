package canvas

import (
	"fmt"
	"strings"
)

// Cluster is a legend entry. Membership lives on NodeData.ClusterID.
type Cluster struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ClusterPalette supplies colors for proposed clusters that come without one.
var ClusterPalette = []string{
	"#8B5CF6",
	"#3B82F6",
	"#10B981",
	"#F59E0B",
	"#EF4444",
	"#EC4899",
	"#06B6D4",
	"#84CC16",
}

// ClusterID returns the synthetic id of the i-th proposed cluster.
func ClusterID(i int) string {
	return fmt.Sprintf("cluster-%d", i)
}

func defaultClusterName(i int) string {
	return fmt.Sprintf("Cluster %d", i+1)
}

func paletteColor(i int) string {
	return ClusterPalette[i%len(ClusterPalette)]
}

// newProposedCluster fills in the defaults for the i-th proposed group.
func newProposedCluster(i int, name, color string) Cluster {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultClusterName(i)
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = paletteColor(i)
	}
	return Cluster{ID: ClusterID(i), Name: name, Color: color}
}
