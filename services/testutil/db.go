package testutil

import (
	"fmt"
	"strings"
	"testing"

	"cesworld/pkg/db"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database named after the test
// and migrates models, usually a service's Models(). Queries go through the
// same zap gorm logger the service uses, silenced.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: db.NewZapGormLogger(zap.L(), logger.Silent, false),
	})
	require.NoError(t, err, "open test database")

	if len(models) > 0 {
		require.NoError(t, conn.AutoMigrate(models...), "migrate test database")
	}

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection keeps savepoints and row locks on the same session
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return conn
}
