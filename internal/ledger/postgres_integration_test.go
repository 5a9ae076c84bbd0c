// AngelaMos | 2026
// postgres_integration_test.go

//go:build integration

package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/principal"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type PostgresLedgerSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *core.Database
	ctx       context.Context
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gatepass"),
		tcpostgres.WithUsername("gatepass"),
		tcpostgres.WithPassword("gatepass"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = core.NewDatabase(s.ctx, config.DatabaseConfig{
		Driver:          config.DriverPostgres,
		URL:             dsn,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	s.Require().NoError(err)
	s.Require().NoError(core.Migrate(s.db))
}

func (s *PostgresLedgerSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresLedgerSuite) SetupTest() {
	_, err := s.db.DB.ExecContext(s.ctx,
		`TRUNCATE redemptions, registration_events, principals`)
	s.Require().NoError(err)
}

// Separate services do not share the in-process lock, so only the unique
// index stands between them.
func (s *PostgresLedgerSuite) TestConcurrentAdmitAcrossServices() {
	phone := "+70000000001"
	s.Require().NoError(principal.NewRepository(s.db.DB).Create(s.ctx, &principal.Principal{
		ID:    "1001",
		Phone: &phone,
	}))

	const goroutines = 40

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		repeated atomic.Int32
	)

	for i := range goroutines {
		svc := NewService(s.db.DB)
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.TryAdmit(s.ctx, "1001", ticket.ClassFree, "staff")
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, core.ErrAlreadyRedeemed):
				repeated.Add(1)
			default:
				s.T().Errorf("goroutine %d: unexpected error: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), admitted.Load())
	s.Equal(int32(goroutines-1), repeated.Load())
}

// Redelivered first contacts race on the principal insert. Every caller
// must get the principal back and only one of them creates it.
func (s *PostgresLedgerSuite) TestConcurrentFirstContact() {
	const goroutines = 20

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)

	for i := range goroutines {
		svc := principal.NewService(s.db.DB)
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p, ok, err := svc.Start(s.ctx, "2001", "guest", "")
			if err != nil {
				s.T().Errorf("goroutine %d: unexpected error: %v", n, err)
				return
			}
			if p.ID != "2001" {
				s.T().Errorf("goroutine %d: got principal %q", n, p.ID)
			}
			if ok {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
}

func (s *PostgresLedgerSuite) TestUnknownPrincipal() {
	_, err := NewService(s.db.DB).TryAdmit(s.ctx, "ghost", ticket.ClassFree, "staff")
	s.ErrorIs(err, core.ErrUnknownPrincipal)
}
