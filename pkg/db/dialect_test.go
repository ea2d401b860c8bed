package db

import (
	"testing"

	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	cfg := config.Config{
		DBHost:     "db",
		DBPort:     "5432",
		DBName:     "orgsync",
		DBUser:     "app",
		DBPassword: "secret",
		DBSSLMode:  "disable",
	}
	assert.Equal(t,
		"host=db user=app password=secret dbname=orgsync port=5432 sslmode=disable TimeZone=UTC",
		PostgresDSN(cfg),
	)
}

func TestDialect(t *testing.T) {
	for _, dbType := range []string{"postgres", " MySQL ", "sqlite"} {
		dialector, err := Dialect(config.Config{DBType: dbType, DBPath: ":memory:"})
		require.NoError(t, err, dbType)
		require.NotNil(t, dialector, dbType)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	require.Error(t, err)
}
