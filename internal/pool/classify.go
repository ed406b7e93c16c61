package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	apperrors "incidentdb/pkg/errors"
)

// IsConnectionLoss reports whether err means the session is unusable.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return strings.Contains(err.Error(), "connection already closed")
}

// Classify maps an error returned while using a session to the application
// error taxonomy. Application errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrUnexpectedQuery.WithMessage("query cancelled").WithCause(err)
	}

	if IsConnectionLoss(err) {
		return apperrors.ErrDatabaseConnectionLost.WithCause(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return apperrors.ErrUnexpectedQuery.
			WithCause(err).
			WithDetail("sqlstate", string(pqErr.Code))
	}

	return apperrors.ErrUnexpectedQuery.WithCause(err)
}
