package main

import (
	"github.com/mchmarny/asdscreen/pkg/cli"
)

func main() {
	cli.Execute()
}
