//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuapuikia/dispatch/internal/app"
	"github.com/tuapuikia/dispatch/internal/config"
	"github.com/tuapuikia/dispatch/internal/testutil"
)

var (
	testApp       *app.App
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool

	// Mailpit receives everything the email sender delivers over SMTP.
	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient

	// chatHook captures webhook posts from the chat sender.
	chatHook *webhookRecorder
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// Accounts seeded by TestMain. The admin row is promoted directly in the
// database since there is no registration path that grants admin.
const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password-123"
	userEmail     = "user@example.com"
	userPassword  = "user-password-123"
)

// newTestClient creates a new test client with OpenAPI validation enabled.
// Use this at the beginning of each test that makes API calls.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI
// validation. Use this for requests the contract does not describe.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()

	mailpitClient = NewMailpitClient(
		mailpitContainer.APIHost,
		mailpitContainer.APIPort,
	)

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	// The chat sender posts to this recorder instead of a real webhook.
	chatHook = newWebhookRecorder()
	chatServer := httptest.NewServer(chatHook)

	// Notifications are enabled end to end: the app's own scheduler runs
	// the sink handlers, email goes to Mailpit over real SMTP and chat
	// posts land in the recorder. Tests pick out their own messages by
	// unique incident titles, so cross-test traffic is harmless.
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		JWT: config.JWTConfig{
			SecretKey:            "test-secret-key",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 24 * time.Hour,
		},
		Scheduler: config.SchedulerConfig{
			QueueSize:  256,
			NumWorkers: 4,
		},
		Notifications: config.NotificationsConfig{
			Enabled: true,
			BaseURL: "http://dispatch.test",
			Email: config.EmailConfig{
				Enabled:          true,
				SMTPHost:         mailpitContainer.SMTPHost,
				SMTPPort:         mailpitContainer.SMTPPort,
				FromAddress:      "Dispatch <noreply@dispatch.test>",
				DistributionList: []string{"oncall@example.com", "sre@example.com"},
			},
			Chat: config.ChatConfig{
				Enabled:    true,
				WebhookURL: chatServer.URL,
				// High enough that delivery never throttles the workers.
				RateLimit: 200,
			},
		},
	}

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Create a direct DB connection for tests that need it
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	if err := seedAccounts(ctx); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	// Closed after shutdown so draining workers can still post.
	chatServer.Close()

	os.Exit(code)
}

// seedAccounts registers the shared admin and user accounts and grants the
// admin role directly in the database.
func seedAccounts(ctx context.Context) error {
	client := testutil.NewClient(testServer.URL)

	for _, account := range []struct{ email, password string }{
		{adminEmail, adminPassword},
		{userEmail, userPassword},
	} {
		resp, err := client.POST("/api/v1/auth/register", map[string]string{
			"email":    account.email,
			"password": account.password,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", account.email, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("register %s: status %d", account.email, resp.StatusCode)
		}
	}

	tag, err := testDB.Exec(ctx, `UPDATE users SET role = 'admin' WHERE email = $1`, adminEmail)
	if err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("promote admin: %d rows affected", tag.RowsAffected())
	}
	return nil
}
