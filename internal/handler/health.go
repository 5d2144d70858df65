package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health reports liveness plus the state of the hard dependencies and the
// tax-document circuit breaker. Returns 503 when Postgres or Redis is
// unreachable so the load balancer takes the instance out of rotation; an
// open breaker is reported but does not fail the check, since sales and
// refunds keep working while credit notes queue up.
func Health(db *gorm.DB, rdb *redis.Client, taxCB *infra.CircuitBreaker) gin.HandlerFunc {
	check := func(ctx context.Context, ping func(context.Context) error) string {
		if err := ping(ctx); err != nil {
			return "down"
		}
		return "up"
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		deps := gin.H{
			"postgres": check(ctx, func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}),
			"redis": check(ctx, func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}

		status := http.StatusOK
		for _, v := range deps {
			if v != "up" {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{
			"status":      http.StatusText(status),
			"deps":        deps,
			"tax_breaker": taxCB.State().String(),
		})
	}
}
