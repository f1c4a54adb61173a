package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionParams_DSN(t *testing.T) {
	params := ConnectionParams{
		Host:     "db",
		Port:     5433,
		User:     "nutrilog",
		Password: "secret",
		DBName:   "foods",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=nutrilog password=secret dbname=foods sslmode=disable", params.DSN())
}

func TestDatabase_CloseNil(t *testing.T) {
	var db *Database
	assert.NotPanics(t, db.Close)
}
