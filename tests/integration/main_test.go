//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/database"
)

const pgvectorImage = "pgvector/pgvector:pg16"

var testDB *database.DB

func TestMain(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	cfg, terminate, err := databaseConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare test database: %v\n", err)
		return 1
	}
	defer terminate()

	db, err := database.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		return 1
	}
	defer db.Close()

	// Path is relative from tests/integration/ to migrations/.
	migrator, err := database.NewMigrator(db, "../../migrations", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		return 1
	}
	_ = migrator.Close()

	testDB = db
	return m.Run()
}

// databaseConfig points at CURATOR_TEST_DB_URL when set, otherwise starts a
// throwaway pgvector container.
func databaseConfig(ctx context.Context) (*config.DatabaseConfig, func(), error) {
	if raw := os.Getenv("CURATOR_TEST_DB_URL"); raw != "" {
		cfg, err := configFromURL(raw)
		return cfg, func() {}, err
	}

	ctr, err := tcpostgres.Run(ctx, pgvectorImage,
		tcpostgres.WithDatabase("curator_test"),
		tcpostgres.WithUsername("curator"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}
	terminate := func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	return &config.DatabaseConfig{
		Host:           host,
		Port:           port.Int(),
		User:           "curator",
		Password:       "testpassword",
		Name:           "curator_test",
		SSLMode:        "disable",
		MaxConns:       10,
		MinConns:       1,
		ConnectTimeout: 10 * time.Second,
	}, terminate, nil
}

func configFromURL(raw string) (*config.DatabaseConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse CURATOR_TEST_DB_URL: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		port = 5432
	}
	password, _ := u.User.Password()
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	return &config.DatabaseConfig{
		Host:           u.Hostname(),
		Port:           port,
		User:           u.User.Username(),
		Password:       password,
		Name:           u.Path[1:],
		SSLMode:        sslMode,
		MaxConns:       10,
		MinConns:       1,
		ConnectTimeout: 10 * time.Second,
	}, nil
}

// cleanTables truncates the given tables between tests.
func cleanTables(t *testing.T, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := testDB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

func cleanAll(t *testing.T) {
	t.Helper()
	cleanTables(t, "papers", "search_history", "collection_stats", "pipeline_runs")
}
