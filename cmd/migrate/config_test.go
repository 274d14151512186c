package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsDir(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("MIGRATIONS_DIR", "/custom/migrations")
		assert.Equal(t, "/custom/migrations", migrationsDir())
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("MIGRATIONS_DIR", "")
		assert.Equal(t, "db/migrations", migrationsDir())
	})
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/books")
	assert.Equal(t, "postgres://u:p@db:5432/books", databaseDSN())
}
