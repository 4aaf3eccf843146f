// Package router classifies logical operations as Read or Write and
// decides which node should serve each one under the three topologies
// spec §4.12 names: a single local process, a master with round-robined
// replicas, or a consistent-hash sharded cluster.
package router

import (
	"fmt"
	"sync/atomic"

	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

const masterNode = "master"

// HealthChecker reports whether a node is currently reachable. Router
// never dials anything itself; it asks the HealthChecker so the same
// decision logic works in tests and against a real cluster membership
// view.
type HealthChecker interface {
	IsHealthy(node string) bool
}

// AlwaysHealthy is the HealthChecker used when no cluster membership
// tracking is configured: every node is assumed reachable, matching
// Standalone mode's single-process reality.
type AlwaysHealthy struct{}

func (AlwaysHealthy) IsHealthy(string) bool { return true }

// Decision is the outcome of routing one operation.
type Decision struct {
	Kind   OpKind
	Target string // "local", "master", a replica address, or "shard-N"
	Shard  int    // shard index for cluster mode, -1 otherwise
}

// Router implements spec §4.12's routing table.
type Router struct {
	cfg    config.RouterConfig
	health HealthChecker
	ring   *HashRing

	replicaCursor atomic.Uint64
}

// New builds a Router from cfg. health may be nil, in which case every
// node is treated as healthy (AlwaysHealthy).
func New(cfg config.RouterConfig, health HealthChecker) *Router {
	if health == nil {
		health = AlwaysHealthy{}
	}
	r := &Router{cfg: cfg, health: health}
	if cfg.Mode == config.RoutingCluster {
		r.ring = NewHashRing(cfg.ShardCount, cfg.VirtualNodesPerShard)
	}
	return r
}

// PointKey builds the routing key for a point-level operation (spec
// §4.12: "collection:id for point ops").
func PointKey(collection, id string) string {
	return collection + ":" + id
}

// CollectionKey builds the routing key for a collection-level operation
// (spec §4.12: "collection for collection-level ops").
func CollectionKey(collection string) string {
	return collection
}

// ReadFromOverride mirrors spec §4.12's "callers may request
// read_from=master" per-operation override; "" means no override.
type ReadFromOverride string

const ReadFromMaster ReadFromOverride = "master"

// Route decides which node serves operation, keyed by key (see PointKey
// / CollectionKey). override lets a caller force read-your-writes via
// read_from=master; pass "" for the configured default.
func (r *Router) Route(operation string, key string, override ReadFromOverride) (Decision, error) {
	kind := Classify(operation)

	switch r.cfg.Mode {
	case config.RoutingCluster:
		return r.routeCluster(kind, key)
	case config.RoutingMasterReplica:
		return r.routeMasterReplica(kind, override)
	default:
		return Decision{Kind: kind, Target: "local", Shard: -1}, nil
	}
}

func (r *Router) routeMasterReplica(kind OpKind, override ReadFromOverride) (Decision, error) {
	if kind == OpWrite || override == ReadFromMaster {
		return Decision{Kind: kind, Target: masterNode, Shard: -1}, nil
	}

	switch r.cfg.ReadPreference {
	case config.ReadPreferMaster:
		return Decision{Kind: kind, Target: masterNode, Shard: -1}, nil
	default:
		// Replica and Nearest both resolve to round-robin over healthy
		// replicas: without live latency measurements there is no basis
		// to prefer one replica over another for "nearest", so it
		// degrades to the same load balancing as Replica.
		return r.routeReplica(kind)
	}
}

func (r *Router) routeReplica(kind OpKind) (Decision, error) {
	replicas := r.cfg.Replicas
	if len(replicas) == 0 {
		if r.cfg.ReplicaFallbackToMaster {
			return Decision{Kind: kind, Target: masterNode, Shard: -1}, nil
		}
		return Decision{}, verrors.AllReplicasDownError("master/replica mode has no configured replicas", nil)
	}

	n := uint64(len(replicas))
	start := r.replicaCursor.Add(1) - 1
	for i := uint64(0); i < n; i++ {
		candidate := replicas[(start+i)%n]
		if r.health.IsHealthy(candidate) {
			return Decision{Kind: kind, Target: candidate, Shard: -1}, nil
		}
	}

	if r.cfg.ReplicaFallbackToMaster {
		return Decision{Kind: kind, Target: masterNode, Shard: -1}, nil
	}
	return Decision{}, verrors.AllReplicasDownError(
		fmt.Sprintf("all %d replicas unhealthy and replica_fallback_to_master disabled", n), nil)
}

func (r *Router) routeCluster(kind OpKind, key string) (Decision, error) {
	excluded := map[int]bool{}
	for attempt := 0; attempt < r.ring.ShardCount(); attempt++ {
		shard, ok := r.ring.ShardExcluding(key, excluded)
		if !ok {
			break
		}
		target := shardNode(shard)
		if r.health.IsHealthy(target) {
			return Decision{Kind: kind, Target: target, Shard: shard}, nil
		}
		excluded[shard] = true
	}
	return Decision{}, verrors.AllReplicasDownError(
		fmt.Sprintf("no healthy shard available for key %q", key), nil)
}

func shardNode(shard int) string {
	return fmt.Sprintf("shard-%d", shard)
}
