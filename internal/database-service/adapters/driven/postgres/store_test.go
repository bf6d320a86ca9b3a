package postgres

import (
	"errors"
	"strings"
	"testing"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/myerrors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "passengers_username_key"}
	err := mapError(dup)
	assert.ErrorIs(t, err, myerrors.ErrDuplicate)
	assert.Contains(t, err.Error(), "passengers_username_key")

	fk := &pgconn.PgError{Code: "23503"}
	assert.Same(t, error(fk), mapError(fk))

	plain := errors.New("conn reset")
	assert.Equal(t, plain, mapError(plain))
}

func TestApplicationColumnsMatchFields(t *testing.T) {
	var app model.DriverApplication
	columns := strings.Split(applicationColumns, ",")
	assert.Len(t, applicationFields(&app), len(columns))
}
