// Command verify waits for a running risk service and scores one sample
// application against it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bnpl-risk/internal/client"
	"bnpl-risk/internal/features"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func sampleApplicant() features.Applicant {
	return features.Applicant{
		LoanAmount:         features.Float(10000),
		InterestRate:       features.Float(12.5),
		Installment:        features.Float(300),
		AnnualIncome:       features.Float(75000),
		DTI:                features.Float(15),
		FICO:               features.Float(720),
		RevolvingUtil:      features.Float(45),
		TotalAccounts:      features.Float(25),
		OpenAccounts:       features.Float(12),
		PublicRecords:      features.Float(0),
		TermMonths:         features.Float(36),
		Grade:              "B",
		HomeOwnership:      "MORTGAGE",
		VerificationStatus: "Verified",
		Purpose:            "debt_consolidation",
	}
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8000", "Risk service base URL")
		wait    = flag.Duration("wait", 20*time.Second, "How long to wait for the service")
		timeout = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c := client.New(*baseURL, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	log.Info().Str("url", *baseURL).Msg("Waiting for server")
	status, err := c.WaitReady(ctx, 2*time.Second)
	if err != nil {
		log.Error().Err(err).Msg("Server failed to start")
		os.Exit(1)
	}
	log.Info().Bool("model_loaded", status.ModelLoaded).Str("model_version", status.ModelVersion).Msg("Server is up")

	res, err := c.PredictApplicant(context.Background(), sampleApplicant())
	if err != nil {
		log.Error().Err(err).Msg("TEST FAILED")
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	log.Info().Str("decision", string(res.Decision)).Msg("TEST PASSED")
}
