// Command plug-control switches or blinks a single Kasa outlet.
package main

import (
	"github.com/joho/godotenv"

	"github.com/hilo-software/strip-control/cmd/plug-control/cmd"
)

func main() {
	// Pick up STRIPCTL_* variables from a local .env file, if there is one.
	_ = godotenv.Load()

	cmd.Execute()
}
