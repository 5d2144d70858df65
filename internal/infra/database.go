package infra

import (
	"fmt"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and migrates the
// settlement schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(
		&model.Branch{},
		&model.PointOfSale{},
		&model.Product{},
		&model.StockLevel{},
		&model.User{},
		&model.Sale{},
		&model.SaleItem{},
		&model.Payment{},
		&model.SaleSequence{},
		&model.CashSession{},
		&model.CashMovement{},
		&model.GiftCard{},
		&model.StoreCredit{},
		&model.InstrumentTransaction{},
		&model.MercadoPagoOrder{},
		&model.PendingRedemption{},
		&model.CreditNote{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	return db, nil
}
