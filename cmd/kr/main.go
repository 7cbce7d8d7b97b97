package main

import (
	"github.com/Paintersrp/kr/internal/cli"
	"github.com/Paintersrp/kr/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
