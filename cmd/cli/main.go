package main

import (
	"github.com/mchmarny/agepulse/pkg/cli"
)

func main() {
	cli.Execute()
}
