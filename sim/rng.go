package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the seed of one game session. The same key, deployments
// and command sequence replay the same per-tick metrics.
type SimulationKey int64

// NewSimulationKey wraps seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Random streams. Each consumer draws from its own stream so that turning one
// feature on or off leaves every other sequence untouched.
const (
	// SubsystemWorkload feeds user and bot traffic and is seeded with the key itself.
	SubsystemWorkload = "workload"

	// SubsystemAttack feeds attack episodes.
	SubsystemAttack = "attack"

	// SubsystemRouter feeds the random routing policy.
	SubsystemRouter = "router"
)

// SubsystemInstance names the stream of the seq-th deployed service. Using the
// deployment order instead of the service ID keeps renamed services on the
// same stream.
func SubsystemInstance(seq int) string {
	return fmt.Sprintf("instance_%d", seq)
}

// PartitionedRNG hands out one seeded *rand.Rand per stream name. Streams other
// than SubsystemWorkload are seeded with key ^ fnv1a(name).
//
// Not safe for concurrent use; the game only touches it while holding its
// state lock.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns an empty partition for key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use. Later
// calls with the same name share the instance and its position.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= streamHash(name)
	}
	r := rand.New(rand.NewSource(seed))
	p.streams[name] = r
	return r
}

// Key returns the session seed.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func streamHash(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
