package sqlvec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/stokry/vectra/errcode"
	"gorm.io/gorm"
)

// ErrUnsupportedDriver configured driver is not mysql, postgres or sqlite
var ErrUnsupportedDriver = errcode.Register(errcode.New(errcode.ModuleBackend, 20, "sqlvec", "error.sqlvec.driver", "unsupported sql driver", errcode.KindValidation))

// conflictMarkers lock and serialization failures reported by the supported drivers
var conflictMarkers = []string{
	"database is locked",
	"deadlock",
	"could not serialize",
	"lock wait timeout",
}

// classify maps database errors onto the error taxonomy. Already classified
// errors are returned unchanged.
func classify(err error) error {
	if err == nil || errcode.KindOf(err) != errcode.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errcode.ErrTimeout.Wrap(err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errcode.ErrNotFound.Wrap(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errcode.ErrConflict.WithMsg("duplicate key").Wrap(err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return errcode.ErrConnection.Wrap(err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range conflictMarkers {
		if strings.Contains(msg, marker) {
			return errcode.ErrConflict.Wrap(err)
		}
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe") {
		return errcode.ErrConnection.Wrap(err)
	}
	return errcode.ErrServer.Wrap(err)
}
