// Command workflow-engine is the entry point for the workflow/kanban engine:
// it wires cli.RootCmd and executes it, same as the teacher's own main.go.
package main

import (
	"log"
	"os"

	"eve.evalgo.org/workflow/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
