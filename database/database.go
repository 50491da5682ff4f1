package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"biscuit-backend/models"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens PostgreSQL through pgx wrapped by otelsql so query and
// pool metrics flow to the same meter provider as the business metrics.
func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=biscuit_shop port=5432 sslmode=disable"
	}

	attrs := otelsql.WithAttributes(attribute.String("db.system", "postgresql"))
	sqlDB, err := otelsql.Open("pgx", dsn, attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := otelsql.RegisterDBStatsMetrics(sqlDB, attrs); err != nil {
		log.Warn().Err(err).Msg("failed to register database pool metrics")
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{TranslateError: true})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	// Ensure PostgreSQL has gen_random_uuid() available (pgcrypto extension).
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto extension: %w", err)
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.CartItem{},
		&models.WishlistItem{},
		&models.Order{},
		&models.OrderItem{},
	)
}

// ConnectRedis returns nil when url is empty so callers can fall back to
// in-process stores.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

type seedProduct struct {
	name  string
	price string
	stock int
}

var demoCatalog = []seedProduct{
	{"Mofo Akondro", "1500.00", 40},
	{"Koba Cookies", "2500.00", 25},
	{"Sablés au Beurre", "1000.00", 60},
	{"Biscuit Coco", "800.00", 80},
}

// SeedDemoCatalog fills an empty products table with a small biscuit
// range so a fresh install can take orders.
func SeedDemoCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	category := models.Category{Name: "Biscuits", Slug: "biscuits"}
	if err := db.Where(models.Category{Slug: category.Slug}).FirstOrCreate(&category).Error; err != nil {
		return err
	}

	for _, s := range demoCatalog {
		product := models.Product{
			Name:       s.name,
			Price:      decimal.RequireFromString(s.price),
			Stock:      s.stock,
			CategoryID: &category.ID,
			Available:  true,
		}
		if err := db.Omit("Category").Create(&product).Error; err != nil {
			return err
		}
	}

	log.Info().Int("products", len(demoCatalog)).Msg("demo catalog created")
	return nil
}
