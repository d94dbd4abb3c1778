//go:build integration

package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aisgo/ais-wms-core/conf"
	"github.com/aisgo/ais-wms-core/database"
	"github.com/aisgo/ais-wms-core/database/postgres"
	"github.com/aisgo/ais-wms-core/logger"
	"github.com/aisgo/ais-wms-core/repository"
	"github.com/aisgo/ais-wms-core/tenant"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "wms",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	db, err := postgres.NewDB(postgres.Config{
		DSN: fmt.Sprintf("postgres://test:test@%s:%s/wms?sslmode=disable", host, port.Port()),
		PoolConfig: database.PoolConfig{
			MaxIdleConns:    8,
			MaxOpenConns:    32,
			ConnMaxLifetime: time.Minute,
		},
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newPostgresRepos(t *testing.T, db *gorm.DB, cfg conf.CoreConfig) (*repository.Core, *Repositories) {
	t.Helper()
	registry, err := repository.NewRegistry(cfg, Definitions()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	core, err := repository.NewCore(repository.CoreParams{DB: db, Registry: registry, Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("core: %v", err)
	}
	repos, err := NewRepositories(core)
	if err != nil {
		t.Fatalf("repositories: %v", err)
	}
	return core, repos
}

func TestPostgresConcurrentAllocation(t *testing.T) {
	db := setupPostgres(t)

	strategies := []struct {
		name string
		cfg  func(*conf.CoreConfig)
	}{
		{"advisory", func(c *conf.CoreConfig) { c.Sequence.LockStrategy = conf.LockStrategyAdvisory }},
		{"serializable", func(c *conf.CoreConfig) {
			c.Sequence.LockStrategy = conf.LockStrategyNone
			c.Tx.Isolation = "serializable"
			c.Tx.MaxAttempts = 100
			c.Tx.RetryDelay = 5 * time.Millisecond
		}},
	}
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := conf.DefaultCoreConfig()
			s.cfg(&cfg)
			core, repos := newPostgresRepos(t, db, cfg)

			// 每个策略使用独立公司，互不影响
			company := "PG-" + s.name
			ctx := tenant.WithScope(context.Background(), tenant.CompanyScope(company))

			const n = 30
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- core.Tx.Execute(ctx, func(txCtx context.Context) error {
						return repos.Invoices.Create(txCtx, &Invoice{Amount: 10})
					})
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("create invoice: %v", err)
				}
			}

			var refs []string
			if err := db.Model(&Invoice{}).Where("company_id = ?", company).Pluck("reference_number", &refs).Error; err != nil {
				t.Fatalf("pluck: %v", err)
			}
			sort.Strings(refs)
			if len(refs) != n {
				t.Fatalf("expected %d invoices, got %d", n, len(refs))
			}
			for i, ref := range refs {
				if want := fmt.Sprintf("%03d", i+1); ref != want {
					t.Fatalf("reference %d: got %q, want %q", i, ref, want)
				}
			}
		})
	}
}

func TestPostgresSearchAndPagination(t *testing.T) {
	db := setupPostgres(t)
	cfg := conf.DefaultCoreConfig()
	cfg.Sequence.LockStrategy = conf.LockStrategyAdvisory
	core, repos := newPostgresRepos(t, db, cfg)
	ctx := tenant.WithScope(context.Background(), tenant.BranchScope("C1", "B1"))

	for i := 1; i <= 25; i++ {
		err := core.Tx.Execute(ctx, func(txCtx context.Context) error {
			return repos.Orders.Create(txCtx, &Order{ReferralID: int64(i), Observation: fmt.Sprintf("Pallet %d_A", i)})
		})
		if err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
	}

	page, limit := 2, 10
	res, err := repos.Orders.List(ctx, repository.ListParams{Page: &page, Limit: &limit, Sort: "referral_id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := repository.PageInfo{Total: 25, Page: 2, Limit: 10, TotalPages: 3}
	if res.Pagination == nil || *res.Pagination != want || res.Data[0].ReferralID != 11 {
		t.Fatalf("unexpected page %+v first=%d", res.Pagination, res.Data[0].ReferralID)
	}

	// 下划线按字面匹配，不是通配符
	res, err = repos.Orders.List(ctx, repository.ListParams{Term: "pallet 7_a", Fields: "referral_id,observation"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Count != 1 || res.Data[0].ReferralID != 7 {
		t.Fatalf("unexpected search result %+v", res.Data)
	}
}
