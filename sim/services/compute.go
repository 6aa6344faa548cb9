package services

import (
	"math"
	"math/rand"
	"strings"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/sirupsen/logrus"
)

// Pricing models for compute instances.
const (
	PricingOnDemand = "on_demand"
	PricingSpot     = "spot"
	PricingReserved = "reserved"
)

const (
	spotDiscount     = 0.3 // spot pays 30% of on-demand
	reservedDiscount = 0.6
	burstBaseline    = 0.4 // burstable families earn credits below 40% load
	scaleCooldown    = 3   // ticks between autoscaling actions
)

// Compute models EC2, Compute Engine and Azure Virtual Machines.
//
// Extension state: pricing model with spot interruptions, an autoscaling group
// whose instance count multiplies capacity, CPU credits for burstable
// families, and GCP's sustained-use discount.
type Compute struct {
	sim.BaseModel

	instanceType   string
	familyModifier float64
	burstable      bool
	unlimited      bool // aws: burst past credits at extra cost
	pricing        string
	hybridBenefit  bool // azure
	sustainedUse   bool // gcp

	interruptRate     float64
	interruptedUntil  int64
	interruptions     int
	autoscaling       bool
	perInstance       int
	minInstances      int
	maxInstances      int
	targetUtilization float64
	instances         int
	lastScaleTick     int64

	credits      float64
	surplusSpent float64
	ticksRunning int64
	tick         int64
}

var computeParams = []string{
	"instance_type", "pricing", "spot", "reserved", "preemptible", "unlimited", "hybrid_benefit",
	"sustained_use", "spot_interruption_rate", "autoscaling", "min_instances", "max_instances",
	"target_utilization",
}

// familyModifiers maps instance-type prefixes to a latency factor.
var familyModifiers = map[sim.Provider]map[string]float64{
	sim.ProviderAWS:   {"t": 1.0, "m": 1.0, "c": 0.8, "r": 0.95},
	sim.ProviderGCP:   {"e2": 1.0, "n2": 0.95, "c2": 0.8, "m2": 0.95},
	sim.ProviderAzure: {"B": 1.0, "D": 1.0, "F": 0.8, "E": 0.95},
}

var burstableFamilies = map[sim.Provider]string{sim.ProviderAWS: "t", sim.ProviderGCP: "e2", sim.ProviderAzure: "B"}

var defaultInstanceTypes = map[sim.Provider]string{
	sim.ProviderAWS:   "m5.large",
	sim.ProviderGCP:   "n2-standard-2",
	sim.ProviderAzure: "Standard_D2s_v5",
}

func newCompute(cfg sim.ServiceConfig, rng *rand.Rand) (*Compute, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	c := &Compute{
		BaseModel:    sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		instanceType: params.String("instance_type", defaultInstanceTypes[cfg.Provider]),
		perInstance:  cfg.Capacity,
		instances:    1,
	}
	family := instanceFamily(cfg.Provider, c.instanceType)
	mod, ok := familyModifiers[cfg.Provider][family]
	if !ok {
		params.Violate("unknown %s instance family in %q", cfg.Provider, c.instanceType)
		mod = 1.0
	}
	c.familyModifier = mod
	c.burstable = family == burstableFamilies[cfg.Provider]
	if c.burstable {
		c.credits = float64(cfg.Capacity) * 10
	}

	// pricing may be given as a name or as contradictory boolean flags
	c.pricing = params.OneOf("pricing", PricingOnDemand, PricingOnDemand, PricingSpot, PricingReserved)
	spot, reserved := params.Bool("spot", false), params.Bool("reserved", false)
	if spot && reserved {
		params.Violate("spot and reserved are mutually exclusive")
	}
	if spot {
		c.pricing = PricingSpot
	}
	if reserved {
		c.pricing = PricingReserved
	}
	if (spot && params.String("pricing", PricingSpot) != PricingSpot) ||
		(reserved && params.String("pricing", PricingReserved) != PricingReserved) {
		params.Violate("pricing %q contradicts spot/reserved flag", params.String("pricing", ""))
	}
	c.interruptRate = params.Float("spot_interruption_rate", 0.002)
	if c.interruptRate < 0 || c.interruptRate > 1 {
		params.Violate("spot_interruption_rate must be in [0,1], got %v", c.interruptRate)
	}

	c.autoscaling = params.Bool("autoscaling", false)
	c.minInstances = params.NonNegativeInt("min_instances", 1)
	c.maxInstances = params.NonNegativeInt("max_instances", c.minInstances)
	c.targetUtilization = params.Float("target_utilization", 0.7)
	if c.autoscaling {
		if c.minInstances < 1 || c.maxInstances < c.minInstances {
			params.Violate("autoscaling needs 1 <= min_instances (%d) <= max_instances (%d)", c.minInstances, c.maxInstances)
		}
		if c.targetUtilization <= 0 || c.targetUtilization > 1 {
			params.Violate("target_utilization must be in (0,1], got %v", c.targetUtilization)
		}
		if c.minInstances >= 1 {
			c.instances = c.minInstances
			c.SetCapacity(c.perInstance * c.instances)
		}
	} else if params.Has("min_instances") || params.Has("max_instances") {
		params.Violate("min_instances/max_instances require autoscaling")
	}
	c.lastScaleTick = -scaleCooldown
	return c, params
}

func instanceFamily(p sim.Provider, instanceType string) string {
	switch p {
	case sim.ProviderAWS:
		// m5.large → m, t3.micro → t
		if instanceType == "" {
			return ""
		}
		return instanceType[:1]
	case sim.ProviderGCP:
		// n2-standard-2 → n2
		return strings.SplitN(instanceType, "-", 2)[0]
	default:
		// Standard_D2s_v5 → D
		name := strings.TrimPrefix(instanceType, "Standard_")
		if name == "" {
			return ""
		}
		return name[:1]
	}
}

func newEC2(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCompute(cfg, rng)
	c.unlimited = params.Bool("unlimited", false)
	if c.unlimited && !c.burstable {
		params.Violate("unlimited applies only to burstable t-family instances")
	}
	for _, k := range []string{"hybrid_benefit", "sustained_use", "preemptible"} {
		if params.Has(k) {
			params.Violate("%s is not an EC2 setting", k)
		}
	}
	return c, sim.FinishParams(cfg, params, computeParams...)
}

func newComputeEngine(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCompute(cfg, rng)
	if params.Bool("preemptible", false) {
		if c.pricing == PricingReserved {
			params.Violate("preemptible and reserved are mutually exclusive")
		}
		c.pricing = PricingSpot
	}
	c.sustainedUse = params.Bool("sustained_use", c.pricing == PricingOnDemand)
	if c.sustainedUse && c.pricing != PricingOnDemand {
		params.Violate("sustained_use discounts apply only to on_demand pricing")
	}
	for _, k := range []string{"hybrid_benefit", "unlimited"} {
		if params.Has(k) {
			params.Violate("%s is not a Compute Engine setting", k)
		}
	}
	return c, sim.FinishParams(cfg, params, computeParams...)
}

func newAzureVM(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCompute(cfg, rng)
	c.hybridBenefit = params.Bool("hybrid_benefit", false)
	for _, k := range []string{"sustained_use", "unlimited", "preemptible"} {
		if params.Has(k) {
			params.Violate("%s is not an Azure VM setting", k)
		}
	}
	return c, sim.FinishParams(cfg, params, computeParams...)
}

// Process implements sim.Service.
func (c *Compute) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	c.ticksRunning++
	c.tick = ctx.Tick
	if c.pricing == PricingSpot {
		if ctx.Tick < c.interruptedUntil {
			c.Observe(len(batch))
			return c.DropAll(batch)
		}
		if c.Rand().Float64() < c.interruptRate {
			c.interruptions++
			c.interruptedUntil = ctx.Tick + int64(2+c.Rand().Intn(4))
			logrus.Infof("[tick %07d] %s: spot capacity reclaimed until tick %d", ctx.Tick, c.ID(), c.interruptedUntil)
			c.Observe(len(batch))
			return c.DropAll(batch)
		}
	}

	res := c.Admit(batch, c.modifier)
	c.updateCredits()
	c.autoscale(ctx.Tick)
	return res
}

// Terminal implements sim.Forwarder: pages and static assets finish at compute,
// API calls continue to the data tier.
func (c *Compute) Terminal(req *sim.Request) bool {
	return !strings.HasPrefix(req.URLPath, "/api") && !strings.HasPrefix(req.URLPath, "/login")
}

func (c *Compute) modifier(_ *sim.Request) float64 {
	m := c.familyModifier
	if c.burstable && c.Load() > burstBaseline && c.credits <= 0 && !c.unlimited {
		m *= 1.5 // throttled to baseline
	}
	return m
}

func (c *Compute) updateCredits() {
	if !c.burstable {
		return
	}
	maxCredits := float64(c.perInstance) * 24
	delta := (burstBaseline - c.Load()) * float64(c.perInstance)
	c.surplusSpent = 0
	if delta < 0 && c.credits+delta < 0 && c.unlimited {
		c.surplusSpent = -(c.credits + delta)
	}
	c.credits = math.Max(0, math.Min(maxCredits, c.credits+delta))
}

// autoscale adjusts the instance count toward the target utilization, one
// instance per action with a cooldown. The new capacity applies next tick.
func (c *Compute) autoscale(tick int64) {
	if !c.autoscaling || tick-c.lastScaleTick < scaleCooldown {
		return
	}
	want := c.instances
	switch {
	case c.Load() > c.targetUtilization && c.instances < c.maxInstances:
		want++
	case c.Load() < c.targetUtilization/2 && c.instances > c.minInstances:
		want--
	}
	if want == c.instances {
		return
	}
	logrus.Debugf("[tick %07d] %s: scaling %d -> %d instances (load=%.2f)", tick, c.ID(), c.instances, want, c.Load())
	c.instances = want
	c.lastScaleTick = tick
	c.SetCapacity(c.perInstance * c.instances)
}

// CostBreakdown implements sim.Service.
func (c *Compute) CostBreakdown() []sim.CostTerm {
	perInstance := c.LoadCost()
	switch c.pricing {
	case PricingSpot:
		perInstance *= spotDiscount
	case PricingReserved:
		perInstance *= reservedDiscount
	}
	terms := []sim.CostTerm{{Name: "instances", Amount: perInstance * float64(c.instances)}}
	if c.pricing == PricingReserved {
		terms = append(terms, sim.CostTerm{Name: "reservation_commitment", Amount: c.BaseCost() * 0.1})
	}
	if c.sustainedUse {
		discount := math.Min(0.3, float64(c.ticksRunning)*0.001)
		terms = append(terms, sim.CostTerm{Name: "sustained_use_discount", Amount: -perInstance * float64(c.instances) * discount})
	}
	if c.hybridBenefit {
		terms = append(terms, sim.CostTerm{Name: "hybrid_benefit", Amount: -perInstance * float64(c.instances) * 0.4})
	}
	if c.surplusSpent > 0 {
		terms = append(terms, sim.CostTerm{Name: "surplus_credits", Amount: c.surplusSpent * 0.0005})
	}
	return terms
}

// Cost implements sim.Service.
func (c *Compute) Cost() float64 { return sim.SumCost(c.CostBreakdown()) }

// State implements sim.Service.
func (c *Compute) State() sim.ServiceState {
	interrupted := 0.0
	if c.tick < c.interruptedUntil {
		interrupted = 1
	}
	return c.BaseState(c.Cost(), map[string]float64{
		"instances":     float64(c.instances),
		"credits":       c.credits,
		"interruptions": float64(c.interruptions),
		"interrupted":   interrupted,
	})
}
