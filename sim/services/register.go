// register.go wires every (provider, type) variant into the sim package's
// factory table. This init() runs when any package imports sim/services,
// breaking the import cycle between sim/ (interface owner) and the variants.
package services

import "github.com/infra-sim/infra-sim/sim"

func init() {
	sim.RegisterVariant(sim.ProviderAWS, sim.TypeLoadBalancer, newALB)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeLoadBalancer, newCloudLoadBalancing)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeLoadBalancer, newApplicationGateway)

	sim.RegisterVariant(sim.ProviderAWS, sim.TypeCompute, newEC2)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeCompute, newComputeEngine)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeCompute, newAzureVM)

	sim.RegisterVariant(sim.ProviderAWS, sim.TypeCache, newElastiCache)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeCache, newMemorystore)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeCache, newAzureCache)

	sim.RegisterVariant(sim.ProviderAWS, sim.TypeDatabase, newRDS)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeDatabase, newCloudSQL)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeDatabase, newAzureSQL)

	sim.RegisterVariant(sim.ProviderAWS, sim.TypeQueue, newSQS)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeQueue, newPubSub)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeQueue, newServiceBus)

	sim.RegisterVariant(sim.ProviderAWS, sim.TypeFirewall, newAWSWAF)
	sim.RegisterVariant(sim.ProviderGCP, sim.TypeFirewall, newCloudArmor)
	sim.RegisterVariant(sim.ProviderAzure, sim.TypeFirewall, newAzureWAF)
}
