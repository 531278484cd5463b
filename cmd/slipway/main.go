package main

import (
	"github.com/rzbill/slipway/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
