package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health reports liveness. With a database handle it also pings MySQL and,
// when configured, Redis; Redis trouble degrades but does not fail the check.
func Health(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db == nil {
			return c.String(http.StatusOK, "ok")
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		out := echo.Map{"status": "ok", "db": "ok"}
		if err := db.PingContext(ctx); err != nil {
			out["status"], out["db"] = "down", err.Error()
			return c.JSON(http.StatusServiceUnavailable, out)
		}
		if rdb != nil {
			out["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				out["status"], out["redis"] = "degraded", err.Error()
			}
		}
		return c.JSON(http.StatusOK, out)
	}
}
