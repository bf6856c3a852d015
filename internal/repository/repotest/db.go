// Package repotest 为各包测试提供内存 sqlite 数据库
package repotest

import (
	"testing"

	"EventSync/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建已迁移的内存数据库，单连接保证同一个库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.MainEvent{}, &model.SubEvent{}, &model.PipelineRun{}))
	return db
}

// Main 插入一个主事件
func Main(t testing.TB, db *gorm.DB, title, start, end, tempKey string) *model.MainEvent {
	t.Helper()
	m := &model.MainEvent{
		EventDetails: model.EventDetails{Title: title, StartDate: start, EndDate: end},
		Lifecycle:    model.LifecycleActive,
		SubEventIDs:  []byte("[]"),
		TempKey:      tempKey,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// Sub 插入一个子事件，parent 为 0 表示无父事件
func Sub(t testing.TB, db *gorm.DB, title, start, end string, parent uint64) *model.SubEvent {
	t.Helper()
	s := &model.SubEvent{
		EventDetails: model.EventDetails{Title: title, StartDate: start, EndDate: end},
		Lifecycle:    model.LifecycleActive,
	}
	if parent != 0 {
		p := parent
		s.MainEventID = &p
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// Archive 直接把主事件标记为已归档
func Archive(t testing.TB, db *gorm.DB, m *model.MainEvent) {
	t.Helper()
	require.NoError(t, db.Model(m).Update("lifecycle", model.LifecycleArchived).Error)
	m.Lifecycle = model.LifecycleArchived
}

// ArchiveSub 直接把子事件标记为已归档
func ArchiveSub(t testing.TB, db *gorm.DB, s *model.SubEvent) {
	t.Helper()
	require.NoError(t, db.Model(s).Update("lifecycle", model.LifecycleArchived).Error)
	s.Lifecycle = model.LifecycleArchived
}
