package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

// spyInvalidator 记录被失效的业务单元
type spyInvalidator struct {
	mu    sync.Mutex
	units []string
}

func (s *spyInvalidator) Invalidate(_ context.Context, businessUnitIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, businessUnitIDs...)
}

func (s *spyInvalidator) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.units))
	copy(out, s.units)
	return out
}

// fixture 两个业务单元, 一组员工, 以及共用的服务依赖
type fixture struct {
	db          *gorm.DB
	policy      *auth.Policy
	audit       service.AuditLogService
	invalidator *spyInvalidator
	logger      *logrus.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.SeedBusinessUnit(t, db, "bu-1", "HO")
	testutil.SeedBusinessUnit(t, db, "bu-2", "BR")

	logger, _ := test.NewNullLogger()
	return &fixture{
		db:          db,
		policy:      auth.NewPolicy(config.Default().Policy),
		audit:       service.NewAuditLogService(repository.NewAuditLogRepository(db)),
		invalidator: &spyInvalidator{},
		logger:      logger,
	}
}
