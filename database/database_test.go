package database

import (
	"testing"

	"github.com/example/company-chat/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, Ping(db))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestPing_Nil(t *testing.T) {
	assert.Error(t, Ping(nil))
	assert.NoError(t, Close(nil))
}
