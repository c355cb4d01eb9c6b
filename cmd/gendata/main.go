// Command gendata writes a synthetic labelled loan ledger for replays and
// drift baselines when no real export is at hand.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"bnpl-risk/internal/replay"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		output = flag.String("output", "data/synthetic_loans.csv", "CSV file to write")
		rows   = flag.Int("rows", 10000, "Number of loans to generate")
		seed   = flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows <= 0 {
		log.Fatal().Int("rows", *rows).Msg("rows must be positive")
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	w := bufio.NewWriter(f)
	if err := replay.Synthesize(w, *rows, *seed); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate loans")
	}
	if err := w.Flush(); err != nil {
		log.Fatal().Err(err).Msg("Failed to write loans")
	}
	if err := f.Close(); err != nil {
		log.Fatal().Err(err).Msg("Failed to close output file")
	}

	fmt.Printf("Generated %d loans (seed %d) in %s\n", *rows, *seed, *output)
}
