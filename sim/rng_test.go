package sim

import (
	"math"
	"math/rand"
	"testing"
)

func TestPartitionedRNG_SameKeySameSequence(t *testing.T) {
	// GIVEN two generators built from the same key
	a := NewPartitionedRNG(NewSimulationKey(42))
	b := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN drawing from the attack subsystem in both
	// THEN the sequences are identical
	for i := 0; i < 5; i++ {
		va := a.ForSubsystem(SubsystemAttack).Float64()
		vb := b.ForSubsystem(SubsystemAttack).Float64()
		if va != vb {
			t.Errorf("draw %d: got %v and %v, want identical", i, va, vb)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// Drawing heavily from workload must not shift the attack stream.
	busy := NewPartitionedRNG(NewSimulationKey(7))
	for i := 0; i < 100; i++ {
		busy.ForSubsystem(SubsystemWorkload).Float64()
	}
	fresh := NewPartitionedRNG(NewSimulationKey(7))

	got := busy.ForSubsystem(SubsystemAttack).Float64()
	want := fresh.ForSubsystem(SubsystemAttack).Float64()
	if got != want {
		t.Errorf("attack first draw = %v, want %v (isolation broken)", got, want)
	}
}

func TestPartitionedRNG_WorkloadUsesMasterSeed(t *testing.T) {
	for _, seed := range []int64{0, 42, -1, math.MaxInt64, math.MinInt64} {
		rng := NewPartitionedRNG(NewSimulationKey(seed))
		direct := rand.New(rand.NewSource(seed))
		if got, want := rng.ForSubsystem(SubsystemWorkload).Int63(), direct.Int63(); got != want {
			t.Errorf("seed %d: workload draw = %d, want %d", seed, got, want)
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForSubsystem(SubsystemRouter) != rng.ForSubsystem(SubsystemRouter) {
		t.Error("ForSubsystem returned different instances for same name")
	}
	if len(rng.streams) != 1 {
		t.Errorf("streams = %d, want 1", len(rng.streams))
	}
	if rng.Key() != SimulationKey(42) {
		t.Errorf("Key() = %v, want 42", rng.Key())
	}
}

func TestSubsystemNames_DoNotCollide(t *testing.T) {
	names := []string{SubsystemWorkload, SubsystemAttack, SubsystemRouter, SubsystemInstance(0), SubsystemInstance(1), ""}
	seen := make(map[int64]string)
	for _, name := range names {
		h := streamHash(name)
		if other, ok := seen[h]; ok {
			t.Errorf("hash collision: %q and %q", name, other)
		}
		seen[h] = name
	}
	if SubsystemInstance(12) != "instance_12" {
		t.Errorf("SubsystemInstance(12) = %q", SubsystemInstance(12))
	}
}
