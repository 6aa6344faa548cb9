package main

import (
	"github.com/infra-sim/infra-sim/cmd"
)

func main() {
	cmd.Execute()
}
