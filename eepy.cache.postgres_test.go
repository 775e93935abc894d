package eepy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPostgresCacheConfig(t *testing.T) {
	cfg := DefaultPostgresCacheConfig()

	assert.Equal(t, PostgresDefaultMaxOpenConns, cfg.MaxOpenConns)
	assert.Equal(t, PostgresDefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, PostgresDefaultConnMaxLifetime, cfg.ConnMaxLifetime)
	assert.Equal(t, PostgresDefaultConnMaxIdleTime, cfg.ConnMaxIdleTime)
	assert.Equal(t, PostgresTablePrefix, cfg.TablePrefix)
	assert.Equal(t, PostgresDefaultQueryTimeout, cfg.QueryTimeout)
	assert.False(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.ConnectionString)
}

func TestPostgresCache_EmptyConnectionString(t *testing.T) {
	_, err := NewPostgresCache(PostgresCacheConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgPostgresEmptyConnString)
}

func TestPostgresCache_InvalidConnectionString(t *testing.T) {
	_, err := NewPostgresCache(PostgresCacheConfig{
		ConnectionString: "invalid://not-a-valid-connection-string",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgPostgresConnectFailed)
}

func TestPostgresCacheDriver_Open_EmptyConnectionString(t *testing.T) {
	_, err := OpenCache(CacheDriverPostgres, "")
	require.Error(t, err)
}

func TestPostgresCache_TableNames(t *testing.T) {
	c := &PostgresCache{config: PostgresCacheConfig{TablePrefix: "app_"}}
	assert.Equal(t, "app_program_cache", c.tableName())
	assert.Equal(t, "app_schema_migrations", c.migrationsTableName())

	migrations := c.migrations()
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "app_program_cache")
}
