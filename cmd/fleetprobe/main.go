package main

import (
	"github.com/NVIDIA/fleet-probe/pkg/cli"
)

func main() {
	cli.Execute()
}
