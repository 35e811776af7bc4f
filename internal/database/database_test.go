package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteDefaultsToMemory(t *testing.T) {
	db, err := Connect("sqlite", "")
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	require.Equal(t, 1, one)
}

func TestConnectRejectsMissingSettings(t *testing.T) {
	_, err := Connect("oracle", "dsn")
	require.Error(t, err)

	_, err = ConnectPostgres("")
	require.Error(t, err)

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectRedis("not-a-url")
	require.Error(t, err)

	_, err = ConnectNATS("", "activity-points-api")
	require.Error(t, err)
}
