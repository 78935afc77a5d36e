package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"audience-response-service/internal/app"
	"audience-response-service/internal/domain"
	"audience-response-service/internal/events"
	pgstore "audience-response-service/internal/infra/postgres"
	pgmigrations "audience-response-service/internal/infra/postgres/migrations"
	infraredis "audience-response-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestRoundAndProgressEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewContentStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	cache := infraredis.NewScoreCache(redisClient, store, 5*time.Minute)

	bus := events.NewBus()
	bus.Subscribe(app.NewCacheCoordinator(cache, bus))
	service := app.NewContentService(store, bus, app.NewTransitionScheduler())
	progress := app.NewProgressService(store, cache)

	session, err := store.SaveSession(ctx, domain.Session{
		Key: "87654321", OwnerID: "teacher", Name: "Integration", Active: true,
	})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	owner := domain.User{ID: "teacher"}

	content, err := service.CreateContent(ctx, domain.Content{
		SessionID: session.ID, Subject: "Kinematics", Body: "v = ?",
		Variant: domain.VariantLecture, QuestionType: "mc", Active: true, MaxValue: 3,
	}, owner)
	if err != nil {
		t.Fatalf("create content: %v", err)
	}

	if _, err := service.SubmitAnswer(ctx, content.ID, domain.User{ID: "alice"}, domain.Answer{Value: 3}); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, content.ID, domain.User{ID: "bob"}, domain.Answer{Value: 1}); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	values, err := progress.MyProgress(ctx, session.Key, domain.ScoreOptions{Type: domain.ProgressTypeScore}, domain.User{ID: "alice"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if values.Achieved != 3 || values.Total != 3 {
		t.Fatalf("expected alice at 3/3, got %+v", values)
	}

	// End round 1, then advance into round 2; round-1 answers must stop
	// counting toward score while the cache is refreshed through Redis.
	if err := service.StartNewRound(ctx, content.ID, owner); err != nil {
		t.Fatalf("end round: %v", err)
	}
	if err := service.StartNewRound(ctx, content.ID, owner); err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, content.ID, domain.User{ID: "alice"}, domain.Answer{Value: 2}); err == nil {
		t.Fatalf("expected voting to be disabled after round end")
	}
	if err := service.SetVotingAdmission(ctx, content.ID, owner, false); err != nil {
		t.Fatalf("reopen voting: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, content.ID, domain.User{ID: "alice"}, domain.Answer{Value: 2}); err != nil {
		t.Fatalf("submit round 2: %v", err)
	}

	values, err = progress.MyProgress(ctx, session.Key, domain.ScoreOptions{Type: domain.ProgressTypeScore}, domain.User{ID: "alice"})
	if err != nil {
		t.Fatalf("my progress after round change: %v", err)
	}
	if values.Achieved != 2 || values.Total != 3 {
		t.Fatalf("expected alice at 2/3 in round 2, got %+v", values)
	}

	courseValues, err := progress.CourseProgress(ctx, session.Key, domain.ScoreOptions{Type: domain.ProgressTypeQuestions})
	if err != nil {
		t.Fatalf("course progress: %v", err)
	}
	if courseValues.Achieved != 1 || courseValues.Total != 1 {
		t.Fatalf("expected course at 1/1, got %+v", courseValues)
	}

	if err := service.ResetRoundState(ctx, content.ID, owner); err != nil {
		t.Fatalf("reset round: %v", err)
	}
	answers, err := service.Answers(ctx, content.ID, 0)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("expected reset to delete answers, got %d", len(answers))
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "ars", "POSTGRES_PASSWORD": "arspass", "POSTGRES_DB": "arsdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://ars:arspass@%s:%s/arsdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
