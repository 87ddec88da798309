package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type shop struct {
	ID     int64  `gorm:"primaryKey"`
	Number string `gorm:"uniqueIndex"`
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "nested", "init.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestInitializer_MigrateSeedAndCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seed := func(ctx context.Context) (int, error) {
		var created int
		for _, number := range []string{"101", "202"} {
			res := db.WithContext(ctx).Where(shop{Number: number}).FirstOrCreate(&shop{Number: number})
			if res.Error != nil {
				return created, res.Error
			}
			created += int(res.RowsAffected)
		}
		return created, nil
	}
	initializer := NewInitializer(db, InitOptions{Models: []interface{}{&shop{}}, Seed: seed})

	res, err := initializer.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seeded)
	assert.Equal(t, map[string]int64{"shops": 2}, res.Rows)

	// 重复执行不会重复写入
	res, err = initializer.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Seeded)
	assert.Equal(t, int64(2), res.Rows["shops"])
}

func TestInitializer_SkipsSeed(t *testing.T) {
	db := openTestDB(t)

	res, err := NewInitializer(db, InitOptions{Models: []interface{}{&shop{}}}).Initialize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Seeded)
	assert.Equal(t, int64(0), res.Rows["shops"])
	assert.True(t, db.Migrator().HasTable(&shop{}))
}

func TestInitializer_SeedError(t *testing.T) {
	db := openTestDB(t)
	boom := errors.New("boom")

	_, err := NewInitializer(db, InitOptions{
		Models: []interface{}{&shop{}},
		Seed:   func(context.Context) (int, error) { return 0, boom },
	}).Initialize(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestInitDB_UnknownDriver(t *testing.T) {
	_, err := InitDB(Options{Driver: "oracle"})
	assert.Error(t, err)
}
