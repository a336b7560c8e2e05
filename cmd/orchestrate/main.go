package main

import (
	"github.com/sparesparrow/build-orchestrator/internal/cli/commands"
)

func main() {
	commands.Execute()
}
