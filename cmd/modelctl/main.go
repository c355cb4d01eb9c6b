// Command modelctl manages the model registry: registering artifacts,
// switching the active version, comparing versions on a loan ledger and
// exporting recorded traffic for retraining.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
