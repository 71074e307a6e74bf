package sqlvec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const pingTimeout = time.Second

// Conn is one pooled SQL session: a dedicated database/sql connection with
// a gorm handle bound to it.
type Conn struct {
	raw    *sql.Conn
	db     *gorm.DB
	broken atomic.Bool
}

// DB returns the gorm handle bound to ctx
func (c *Conn) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

// Healthy implements pool.Conn
func (c *Conn) Healthy(ctx context.Context) bool {
	if c.broken.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.raw.PingContext(ctx) == nil
}

// Close implements pool.Conn
func (c *Conn) Close() error {
	return c.raw.Close()
}

// observe marks the session broken after a driver-level connection failure
func (c *Conn) observe(err error) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		c.broken.Store(true)
	}
}

// dialector selects the gorm driver. A non-nil conn binds the dialector to
// an existing session instead of opening from dsn.
func dialector(driverName, dsn string, conn gorm.ConnPool) (gorm.Dialector, error) {
	switch driverName {
	case DriverMySQL:
		return mysql.New(mysql.Config{DSN: dsn, Conn: conn}), nil
	case DriverPostgres:
		return postgres.New(postgres.Config{DSN: dsn, Conn: conn}), nil
	case DriverSQLite:
		return &sqlite.Dialector{DSN: dsn, Conn: conn}, nil
	default:
		return nil, ErrUnsupportedDriver.WithMsgf("unsupported driver: %s", driverName).WithData("driver", driverName)
	}
}
