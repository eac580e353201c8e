// Package dbtest opens isolated in-memory databases for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// AllModels lists every table the checkout core touches.
var AllModels = []any{
	&models.User{},
	&models.Store{},
	&models.Product{},
	&models.ShippingOption{},
	&models.Address{},
	&models.Cart{},
	&models.CartItem{},
	&models.Order{},
	&models.OrderItem{},
	&models.IdempotencyKey{},
	&models.ProcessedWebhookEvent{},
	&models.SellerLedgerEntry{},
	&models.ConnectAuthorizationState{},
	&models.OutboxEvent{},
}

// Open returns a client over a fresh shared-cache sqlite database migrated with AllModels.
// The pool holds one connection, so transactions run one after another.
func Open(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:bazaar_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(AllModels...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.NewFromConn(conn)
}
