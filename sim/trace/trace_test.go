package trace

import (
	"fmt"
	"testing"
)

func TestSimulationTrace_RecordFirewall_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN a firewall record is recorded
	st.RecordFirewall(FirewallRecord{
		RequestID:       "t1-1",
		Tick:            1,
		ServiceID:       "aws-firewall-1",
		Action:          "BLOCK",
		TerminatingRule: "block-admin",
		Blocked:         true,
	})

	// THEN the trace contains one firewall record with correct data
	if len(st.Firewalls) != 1 {
		t.Fatalf("expected 1 firewall record, got %d", len(st.Firewalls))
	}
	if st.Firewalls[0].TerminatingRule != "block-admin" {
		t.Errorf("expected rule block-admin, got %s", st.Firewalls[0].TerminatingRule)
	}
}

func TestSimulationTrace_TicksLevel_SkipsDecisions(t *testing.T) {
	// GIVEN a trace at the ticks level
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelTicks})

	// WHEN tick, firewall and routing records are recorded
	st.RecordTick(TickRecord{Tick: 1, Offered: 10, Processed: 10, Availability: 100})
	st.RecordFirewall(FirewallRecord{RequestID: "r1", Action: "ALLOW"})
	st.RecordRouting(RoutingRecord{RequestID: "r1", Status: "processed", Path: []string{"vm"}})

	// THEN only the tick record is kept
	if len(st.Ticks) != 1 {
		t.Fatalf("expected 1 tick record, got %d", len(st.Ticks))
	}
	if len(st.Firewalls) != 0 || len(st.Routings) != 0 {
		t.Error("decision records recorded at ticks level")
	}
}

func TestSimulationTrace_NoneLevel_RecordsNothing(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{})

	st.RecordTick(TickRecord{Tick: 1})

	if len(st.Ticks) != 0 {
		t.Errorf("expected no records, got %d", len(st.Ticks))
	}
}

func TestSimulationTrace_MaxRecords_EvictsOldest(t *testing.T) {
	// GIVEN a trace bounded to three records per list
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions, MaxRecords: 3})

	// WHEN five routing records are added
	for i := 0; i < 5; i++ {
		st.RecordRouting(RoutingRecord{RequestID: fmt.Sprintf("r%d", i)})
	}

	// THEN the newest three remain in order
	if len(st.Routings) != 3 {
		t.Fatalf("expected 3 routings, got %d", len(st.Routings))
	}
	if st.Routings[0].RequestID != "r2" || st.Routings[2].RequestID != "r4" {
		t.Errorf("unexpected window %v", st.Routings)
	}
	if st.Evicted != 2 {
		t.Errorf("expected 2 evicted, got %d", st.Evicted)
	}
}

func TestSimulationTrace_MaxRecords_BoundedBacking(t *testing.T) {
	// GIVEN a trace bounded to 100 records per list
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions, MaxRecords: 100})

	// WHEN far more records than the bound are added
	for i := 0; i < 1050; i++ {
		st.RecordRouting(RoutingRecord{RequestID: fmt.Sprintf("r%d", i)})
	}

	// THEN the window holds the newest 100 in order and the backing array stays bounded
	if len(st.Routings) != 100 {
		t.Fatalf("expected 100 routings, got %d", len(st.Routings))
	}
	if st.Routings[0].RequestID != "r950" || st.Routings[99].RequestID != "r1049" {
		t.Errorf("unexpected window [%s..%s]", st.Routings[0].RequestID, st.Routings[99].RequestID)
	}
	if st.Evicted != 950 {
		t.Errorf("expected 950 evicted, got %d", st.Evicted)
	}
	if cap(st.Routings) > 200 {
		t.Errorf("backing array grew to %d", cap(st.Routings))
	}
}

func TestSimulationTrace_Reset_KeepsConfig(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions, MaxRecords: 3})
	st.RecordTick(TickRecord{Tick: 1})
	st.RecordFirewall(FirewallRecord{RequestID: "r1"})

	st.Reset()

	if len(st.Ticks) != 0 || len(st.Firewalls) != 0 {
		t.Error("records survived reset")
	}
	if st.Config.MaxRecords != 3 || st.Config.Level != TraceLevelDecisions {
		t.Errorf("config changed by reset: %+v", st.Config)
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"ticks", true},
		{"decisions", true},
		{"", true}, // empty defaults to none
		{"detailed", false},
		{"NONE", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
