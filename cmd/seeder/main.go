// Command seeder provisions the wallet schema and its baseline records: the
// default asset, the treasury system account, and a handful of demo user
// accounts. Safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/walletops/internal/config"
	"github.com/punchamoorthee/walletops/internal/store/postgres"
	"github.com/rs/zerolog"
)

var (
	assetName  string
	demoOwners int
)

func init() {
	flag.StringVar(&assetName, "asset-name", "Gold Coins", "Display name for the default asset")
	flag.IntVar(&demoOwners, "demo-owners", 2, "Number of generated demo user accounts")
}

func main() {
	flag.Parse()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "walletops-seeder").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if cfg.DB.Driver != config.DriverPostgres {
		log.Fatal().Str("driver", cfg.DB.Driver).Msg("seeder only supports the postgres driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer conn.Close(ctx)

	if err := postgres.Provision(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("provisioning schema")
	}
	log.Info().Msg("schema provisioned")

	assetID, err := ensureAsset(ctx, conn, assetName, cfg.Wallet.DefaultAssetCode)
	if err != nil {
		log.Fatal().Err(err).Msg("seeding asset")
	}

	if err := ensureTreasury(ctx, conn, cfg.Wallet.TreasuryName, assetID); err != nil {
		log.Fatal().Err(err).Msg("seeding treasury")
	}

	created, err := seedDemoOwners(ctx, conn, assetID, demoOwners)
	if err != nil {
		log.Fatal().Err(err).Msg("seeding demo owners")
	}

	log.Info().
		Str("asset_code", cfg.Wallet.DefaultAssetCode).
		Str("treasury", cfg.Wallet.TreasuryName).
		Int64("demo_owners_created", created).
		Msg("seed completed")
}

func ensureAsset(ctx context.Context, conn *pgx.Conn, name, code string) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx, `
		INSERT INTO assets (name, code, description)
		VALUES ($1, $2, 'In-game currency')
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		name, code,
	).Scan(&id)
	return id, err
}

func ensureTreasury(ctx context.Context, conn *pgx.Conn, name string, assetID int64) error {
	// The (owner_id, asset_id) unique constraint does not cover system
	// accounts (owner_id is NULL), so check explicitly before inserting.
	var exists bool
	err := conn.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM accounts
			WHERE account_type = 'system' AND name = $1 AND asset_id = $2
		)`,
		name, assetID,
	).Scan(&exists)
	if err != nil || exists {
		return err
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO accounts (account_type, owner_id, name, asset_id)
		VALUES ('system', NULL, $1, $2)`,
		name, assetID,
	)
	return err
}

// seedDemoOwners bulk-inserts generated user accounts with CopyFrom,
// skipping entirely when any demo account already exists.
func seedDemoOwners(ctx context.Context, conn *pgx.Conn, assetID int64, count int) (int64, error) {
	if count <= 0 {
		return 0, nil
	}

	var existing int
	if err := conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM accounts WHERE account_type = 'user' AND asset_id = $1",
		assetID,
	).Scan(&existing); err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	rows := make([][]any, 0, count)
	for i := 0; i < count; i++ {
		owner := fmt.Sprintf("demo-user-%03d", i+1)
		rows = append(rows, []any{"user", owner, owner, assetID})
	}
	return conn.CopyFrom(
		ctx,
		pgx.Identifier{"accounts"},
		[]string{"account_type", "owner_id", "name", "asset_id"},
		pgx.CopyFromRows(rows),
	)
}
