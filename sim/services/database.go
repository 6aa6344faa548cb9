package services

import (
	"math"
	"math/rand"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/sirupsen/logrus"
)

const (
	writeLatencyFactor = 1.5
	failoverTicks      = 2 // ticks a Multi-AZ failover keeps the primary unavailable
	storageRatePerGB   = 0.0001
	iopsRate           = 0.00002
)

// Database models RDS, Cloud SQL and Azure SQL Database.
//
// Reads spread over the primary and its read replicas, writes go to the
// primary only. Extension state: a connection pool whose exhaustion queues
// requests at a latency penalty, replica lag, and Multi-AZ failover windows.
type Database struct {
	sim.BaseModel

	engine          string
	replicas        int
	multiAZ         bool
	storageGB       int
	provisionedIOPS int
	backupDays      int
	maxConnections  int
	failoverRate    float64
	serverless      bool // azure: serverless compute tier

	failingOverUntil int64
	failovers        int
	poolWaits        int
	replicaLagMs     float64
	reads, writes    int
	tick             int64
}

var databaseParams = []string{
	"engine", "instance_class", "tier", "replicas", "multi_az", "storage_gb", "provisioned_iops",
	"backup_retention_days", "max_connections", "failover_rate",
}

func newDatabase(cfg sim.ServiceConfig, rng *rand.Rand, engines []string) (*Database, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	db := &Database{
		BaseModel:        sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		engine:           params.OneOf("engine", engines[0], engines...),
		replicas:         params.NonNegativeInt("replicas", 0),
		multiAZ:          params.Bool("multi_az", false),
		storageGB:        params.NonNegativeInt("storage_gb", 20),
		provisionedIOPS:  params.NonNegativeInt("provisioned_iops", 0),
		backupDays:       params.NonNegativeInt("backup_retention_days", 7),
		maxConnections:   params.NonNegativeInt("max_connections", cfg.Capacity),
		failoverRate:     params.Float("failover_rate", 0.001),
		failingOverUntil: -1,
	}
	params.String("instance_class", "")
	if db.failoverRate < 0 || db.failoverRate > 1 {
		params.Violate("failover_rate must be in [0,1], got %v", db.failoverRate)
	}
	if db.maxConnections < 1 {
		params.Violate("max_connections must be >= 1")
	}
	if db.backupDays > 35 {
		params.Violate("backup_retention_days must be <= 35, got %d", db.backupDays)
	}
	return db, params
}

func newRDS(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	db, params := newDatabase(cfg, rng, []string{"postgres", "mysql", "mariadb", "aurora-postgresql", "aurora-mysql"})
	if db.replicas > 15 {
		params.Violate("RDS supports at most 15 read replicas, got %d", db.replicas)
	}
	if db.provisionedIOPS > 0 && db.storageGB < 100 {
		params.Violate("provisioned_iops requires storage_gb >= 100, got %d", db.storageGB)
	}
	if params.Has("tier") {
		params.Violate("tier is not an RDS setting")
	}
	return db, sim.FinishParams(cfg, params, databaseParams...)
}

func newCloudSQL(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	db, params := newDatabase(cfg, rng, []string{"postgres", "mysql", "sqlserver"})
	if db.replicas > 10 {
		params.Violate("Cloud SQL supports at most 10 read replicas, got %d", db.replicas)
	}
	if params.Has("provisioned_iops") {
		params.Violate("Cloud SQL scales IOPS with storage; provisioned_iops is not a setting")
	}
	// Cloud SQL calls Multi-AZ "high availability"
	tier := params.OneOf("tier", "enterprise", "enterprise", "enterprise_plus")
	if tier == "enterprise_plus" {
		db.multiAZ = true
	}
	return db, sim.FinishParams(cfg, params, databaseParams...)
}

func newAzureSQL(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	db, params := newDatabase(cfg, rng, []string{"sqlserver"})
	tier := params.OneOf("tier", "general_purpose", "general_purpose", "business_critical", "hyperscale", "serverless")
	db.serverless = tier == "serverless"
	if tier == "business_critical" {
		db.multiAZ = true
		if db.replicas == 0 {
			db.replicas = 1 // built-in readable secondary
		}
	}
	if db.replicas > 4 && tier != "hyperscale" {
		params.Violate("Azure SQL %s supports at most 4 replicas, got %d", tier, db.replicas)
	}
	return db, sim.FinishParams(cfg, params, databaseParams...)
}

// Process implements sim.Service.
func (db *Database) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	db.tick = ctx.Tick
	db.reads, db.writes, db.poolWaits = 0, 0, 0
	db.Observe(len(batch))

	if db.multiAZ && ctx.Tick >= db.failingOverUntil && len(batch) > 0 && db.Rand().Float64() < db.failoverRate {
		db.failingOverUntil = ctx.Tick + failoverTicks
		db.failovers++
		logrus.Infof("[tick %07d] %s: multi-AZ failover until tick %d", ctx.Tick, db.ID(), db.failingOverUntil)
	}
	if ctx.Tick < db.failingOverUntil {
		db.replicaLagMs = 0
		return db.DropAll(batch)
	}

	// primary connections are held by writes and the primary's share of reads
	readSlots := db.replicas + 1
	inUse := 0
	var res sim.ProcessResult
	for _, req := range batch {
		write := !req.IsRead()
		if db.ShouldDrop() {
			db.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		m := 1.0
		if write {
			db.writes++
			m = writeLatencyFactor
			inUse++
		} else {
			db.reads++
			if db.reads%readSlots == 0 {
				inUse++
			} else {
				m = 0.9 // replica read
			}
		}
		if inUse > db.maxConnections {
			db.poolWaits++
			m *= 1.25
		}
		db.Serve(req, m)
		res.Processed = append(res.Processed, req)
	}

	if db.replicas > 0 {
		// replicas trail the primary in proportion to write pressure
		db.replicaLagMs = math.Round(float64(db.writes) / float64(db.Capacity()) * 1000)
	} else {
		db.replicaLagMs = 0
	}
	return res
}

// Terminal implements sim.Forwarder: the database is the last stage.
func (db *Database) Terminal(_ *sim.Request) bool { return true }

// CostBreakdown implements sim.Service.
func (db *Database) CostBreakdown() []sim.CostTerm {
	primary := db.LoadCost()
	if db.serverless && db.Offered() == 0 {
		primary = 0 // auto-paused
	}
	terms := []sim.CostTerm{
		{Name: "primary", Amount: primary},
		{Name: "storage", Amount: float64(db.storageGB) * storageRatePerGB},
	}
	if db.replicas > 0 {
		terms = append(terms, sim.CostTerm{Name: "replicas", Amount: db.BaseCost() * float64(db.replicas)})
	}
	if db.multiAZ {
		terms = append(terms, sim.CostTerm{Name: "multi_az", Amount: db.BaseCost()})
	}
	if db.provisionedIOPS > 0 {
		terms = append(terms, sim.CostTerm{Name: "iops", Amount: float64(db.provisionedIOPS) * iopsRate})
	}
	if db.backupDays > 7 {
		terms = append(terms, sim.CostTerm{Name: "backup", Amount: float64(db.storageGB*(db.backupDays-7)) * storageRatePerGB / 7})
	}
	return terms
}

// Cost implements sim.Service.
func (db *Database) Cost() float64 { return sim.SumCost(db.CostBreakdown()) }

// State implements sim.Service.
func (db *Database) State() sim.ServiceState {
	failingOver := 0.0
	if db.tick < db.failingOverUntil {
		failingOver = 1
	}
	return db.BaseState(db.Cost(), map[string]float64{
		"reads":          float64(db.reads),
		"writes":         float64(db.writes),
		"replicas":       float64(db.replicas),
		"replica_lag_ms": db.replicaLagMs,
		"pool_waits":     float64(db.poolWaits),
		"failovers":      float64(db.failovers),
		"failing_over":   failingOver,
	})
}
