package selection

import (
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/feature"
)

// Cluster size thresholds.
const (
	smallClusterMax  = 10
	mediumClusterMax = 100
)

// ClusterClass returns the badge class for a cluster of childCount markers.
// The selected modifier is added when the selected row is a member.
func (c *Coordinator) ClusterClass(childCount int, members []feature.Key) string {
	size := "large"
	switch {
	case childCount < smallClusterMax:
		size = "small"
	case childCount < mediumClusterMax:
		size = "medium"
	}
	class := "marker-cluster marker-cluster-" + size
	if c.clusterHoldsSelection(members) {
		class += " marker-cluster-selected"
	}
	return class
}

// clusterHoldsSelection never fails: any inconsistency reads as not selected.
func (c *Coordinator) clusterHoldsSelection(members []feature.Key) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("selection: cluster membership check failed", zap.Any("panic", r))
			found = false
		}
	}()
	id, ok := c.Selected()
	if !ok {
		return false
	}
	for _, k := range members {
		if k.Source == "" && k.Row == id {
			return true
		}
	}
	return false
}
