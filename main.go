package main

import (
	"github.com/BioHazard786/linkdrop/cmd"
	"github.com/BioHazard786/linkdrop/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
