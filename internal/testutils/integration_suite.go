package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tubewatch/backend/internal/config"
)

type IntegrationSuite struct {
	T     *testing.T
	DB    *sql.DB
	Redis *redis.Client
	NSQ   *nsq.Producer

	dbHost, dbPort string
	redisAddr      string
	nsqdAddr       string
	nsqdHTTPAddr   string

	// Containers
	pgContainer    *postgres.PostgresContainer
	redisContainer testcontainers.Container
	nsqContainer   testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationPath returns the file:// URL of the repository's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(b)
	return fmt.Sprintf("file://%s/../../migrations", basepath)
}

func (s *IntegrationSuite) Setup() {
	s.setupPostgres()
	s.setupRedis()
	s.setupNSQ()
}

// SetupPostgres starts only the migrated Postgres container.
func (s *IntegrationSuite) SetupPostgres() {
	s.setupPostgres()
}

func (s *IntegrationSuite) setupPostgres() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tubewatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(s.T, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.dbHost, s.dbPort = host, port.Port()

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) setupRedis() {
	s.Redis, s.redisContainer, s.redisAddr = StartRedis(s.T)
}

// StartRedis runs a throwaway Redis container and returns a connected client.
func StartRedis(t *testing.T) (*redis.Client, testcontainers.Container, string) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	addr := fmt.Sprintf("%s:%s", host, port.Port())
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())
	return client, c, addr
}

func (s *IntegrationSuite) setupNSQ() {
	ctx := context.Background()

	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	nsqPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	httpPort, err := nsqC.MappedPort(ctx, "4151")
	require.NoError(s.T, err)

	s.nsqdAddr = fmt.Sprintf("%s:%s", nsqHost, nsqPort.Port())
	s.nsqdHTTPAddr = fmt.Sprintf("%s:%s", nsqHost, httpPort.Port())

	s.NSQ, err = nsq.NewProducer(s.nsqdAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

// GetAppConfig returns a config pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	var port int
	fmt.Sscanf(s.dbPort, "%d", &port)
	return &config.Config{
		DBHost:                     s.dbHost,
		DBPort:                     port,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "tubewatch_test",
		RedisAddr:                  s.redisAddr,
		NSQDHost:                   s.nsqdAddr,
		NSQDHTTP:                   s.nsqdHTTPAddr,
		NSQMaxAttempts:             5,
		ResolverConcurrency:        1,
		ResolveTimeoutSeconds:      5,
		MigrationPath:              MigrationPath(),
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
		ServerPort:                 8081,
	}
}

func (s *IntegrationSuite) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// ConsumeOne waits for a single message on topic, returning nil on timeout.
func (s *IntegrationSuite) ConsumeOne(topic string) *nsq.Message {
	cfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(topic, "test", cfg)
	require.NoError(s.T, err)
	defer consumer.Stop()

	msgs := make(chan *nsq.Message, 1)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		select {
		case msgs <- m:
		default:
		}
		return nil
	}))
	require.NoError(s.T, consumer.ConnectToNSQD(s.nsqdAddr))

	select {
	case m := <-msgs:
		return m
	case <-time.After(10 * time.Second):
		return nil
	}
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.redisContainer != nil {
		s.redisContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}
