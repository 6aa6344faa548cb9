package sim_test

// Blank import triggers sim/services' init(), which registers every variant.
// This allows package sim's internal test files to deploy real services
// without directly importing sim/services (which would create an import cycle).
import _ "github.com/infra-sim/infra-sim/sim/services"
