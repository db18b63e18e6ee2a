// Command strip-control switches every outlet of a Kasa smart strip on or off.
package main

import (
	"github.com/joho/godotenv"

	"github.com/hilo-software/strip-control/cmd/strip-control/cmd"
)

func main() {
	// Pick up STRIPCTL_* variables from a local .env file, if there is one.
	_ = godotenv.Load()

	cmd.Execute()
}
