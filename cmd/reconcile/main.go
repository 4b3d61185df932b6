// Command reconcile re-derives the stored financial fields of every
// exchange from its budget and status. RecomputeFinancials is idempotent,
// so the pass is safe to run repeatedly against a live database.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gfranca/troca-api/internal/database"
	"github.com/gfranca/troca-api/internal/exchange"
)

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	db, err := database.NewDatabase(os.Getenv("DB_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	service := exchange.NewService(db)

	ids, err := service.ListExchangeIDs()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to list exchanges")
	}

	zlog.Info().Int("exchanges", len(ids)).Msg("starting financial reconciliation")

	var failed int
	for _, id := range ids {
		e, err := service.RecomputeFinancials(id)
		if err != nil {
			failed++
			zlog.Error().Err(err).Str("exchange_id", id).Msg("recompute failed")
			continue
		}

		zlog.Info().
			Str("exchange_id", e.ExchangeID).
			Str("status", e.Status).
			Str("total_value", e.TotalValue.String()).
			Str("recovered_value", e.RecoveredValue.String()).
			Str("pending_value", e.PendingValue.String()).
			Msg("exchange reconciled")
	}

	if failed > 0 {
		zlog.Error().Int("failed", failed).Msg("reconciliation finished with errors")
		os.Exit(1)
	}

	zlog.Info().Msg("reconciliation finished")
}
