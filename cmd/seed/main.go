package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/config"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	pg "github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/db/postgres"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/security"
)

// seed prepares a predictable database for manual end-to-end runs: a demo
// user plus one PAID purchase under the same email that no user owns yet.
// The next orphan sweep (or POST /admin/v1/sweeps/orphans) links it.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "demo-user-1", "id of the demo user")
	email := flag.String("email", "test_demo@example.com", "email shared by the user and the purchase")
	planID := flag.String("plan", model.PlanSilver, "plan of the seeded purchase")
	reset := flag.Bool("reset", false, "truncate ledger and subscription tables first")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if *reset {
		logger.Info().Msg("[1/3] wiping ledger and subscription tables")
		if _, err := pool.Exec(ctx, `TRUNCATE subscription_renewals, user_subscriptions, purchases, users RESTART IDENTITY CASCADE`); err != nil {
			logger.Fatal().Err(err).Msg("truncate")
		}
	}

	var cipher security.FieldCipher = security.Plaintext{}
	if key := cfg.Security.EncryptionKey; key != "" {
		if cipher, err = security.NewEncryptionService(key); err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
	}
	users := pg.NewPostgresUserRepo(pool)
	purchases := pg.NewPostgresPurchaseRepo(pool, cipher)

	plan, err := model.PlanByID(*planID)
	if err != nil {
		logger.Fatal().Err(err).Msg("plan")
	}
	user, err := model.NewUser(*userID, *email)
	if err != nil {
		logger.Fatal().Err(err).Msg("user")
	}

	logger.Info().Str("user_id", user.ID).Msg("[2/3] seeding demo user")
	if err := users.Save(ctx, repository.NoTX, user); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		logger.Fatal().Err(err).Msg("save user")
	}

	logger.Info().Str("plan", plan.ID).Msg("[3/3] seeding paid orphan purchase")
	now := time.Now().UTC()
	p := &model.Purchase{
		ID:              model.NewID(),
		PaymentID:       cfg.Payment.TestPaymentPrefix + model.NewID(),
		PlanID:          plan.ID,
		PlanPriceCents:  plan.PriceCents,
		TotalPriceCents: model.TotalCents(plan, nil),
		Method:          model.PaymentMethodPix,
		Status:          model.PurchaseStatusPending,
		Customer:        model.Customer{Name: "Demo Buyer", Email: user.Email},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := purchases.Save(ctx, repository.NoTX, p); err != nil {
		logger.Fatal().Err(err).Msg("save purchase")
	}
	if _, err := purchases.UpdateStatusIfPending(ctx, repository.NoTX, p.PaymentID, model.PurchaseStatusPaid, &now); err != nil {
		logger.Fatal().Err(err).Msg("mark paid")
	}
	logger.Info().Str("payment_id", p.PaymentID).Str("email", user.Email).Int64("cents", p.TotalPriceCents).Msg("seeding complete")
}
