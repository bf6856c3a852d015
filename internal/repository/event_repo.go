package repository

import (
	"context"
	"errors"
	"fmt"

	"EventSync/internal/model"

	"gorm.io/gorm"
)

// MainFilter 主事件查询条件
type MainFilter struct {
	ActiveOnly bool     // 仅未归档
	IDs        []uint64 // 指定 id
}

// SubFilter 子事件查询条件
type SubFilter struct {
	ActiveOnly     bool     // 仅未归档
	WithParentOnly bool     // 仅 main_event_id 非空
	MainIDs        []uint64 // 按父事件过滤
}

// CatalogFilter 对外目录查询条件
type CatalogFilter struct {
	Archived *bool  // nil 不过滤
	City     string // 城市
}

// EventRepository 主/子事件两张关联表的通用仓储
type EventRepository interface {
	// Transaction 在同一事务内执行 fn，fn 返回错误则整体回滚
	Transaction(ctx context.Context, fn func(repo EventRepository) error) error

	ListMainEvents(ctx context.Context, filter MainFilter) ([]*model.MainEvent, error)
	ListSubEvents(ctx context.Context, filter SubFilter) ([]*model.SubEvent, error)
	ListMainIDs(ctx context.Context) ([]uint64, error)

	CreateMainEvents(ctx context.Context, events []*model.MainEvent) error
	CreateSubEvents(ctx context.Context, events []*model.SubEvent) error
	SaveMainEvent(ctx context.Context, event *model.MainEvent) error

	// DeleteMainEvents 删除主事件并级联删除其子事件；不存在的 id 直接忽略
	DeleteMainEvents(ctx context.Context, ids []uint64) (deleted, cascaded int64, err error)
	// DeleteSubEvents 删除子事件；不存在的 id 直接忽略
	DeleteSubEvents(ctx context.Context, ids []uint64) (int64, error)

	ArchiveMainEvents(ctx context.Context, ids []uint64) (int64, error)
	ArchiveSubEvents(ctx context.Context, ids []uint64) (int64, error)

	// FindMainByTempKey 当前持有该 temp_key 的最新未归档主事件，没有则返回 nil
	FindMainByTempKey(ctx context.Context, tempKey string) (*model.MainEvent, error)

	ListCatalog(ctx context.Context, filter CatalogFilter, page, pageSize int) ([]*model.MainEvent, int64, error)
	GetMainEvent(ctx context.Context, id uint64) (*model.MainEvent, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Transaction(ctx context.Context, fn func(repo EventRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&eventRepository{db: tx})
	})
}

func (r *eventRepository) ListMainEvents(ctx context.Context, filter MainFilter) ([]*model.MainEvent, error) {
	db := r.db.WithContext(ctx).Model(&model.MainEvent{})
	if filter.ActiveOnly {
		db = db.Where("lifecycle = ?", model.LifecycleActive)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []*model.MainEvent{}, nil
		}
		db = db.Where("id IN ?", filter.IDs)
	}
	var events []*model.MainEvent
	if err := db.Order("id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListSubEvents(ctx context.Context, filter SubFilter) ([]*model.SubEvent, error) {
	db := r.db.WithContext(ctx).Model(&model.SubEvent{})
	if filter.ActiveOnly {
		db = db.Where("lifecycle = ?", model.LifecycleActive)
	}
	if filter.WithParentOnly {
		db = db.Where("main_event_id IS NOT NULL")
	}
	if filter.MainIDs != nil {
		if len(filter.MainIDs) == 0 {
			return []*model.SubEvent{}, nil
		}
		db = db.Where("main_event_id IN ?", filter.MainIDs)
	}
	var events []*model.SubEvent
	if err := db.Order("id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListMainIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&model.MainEvent{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *eventRepository) CreateMainEvents(ctx context.Context, events []*model.MainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&events).Error; err != nil {
		return fmt.Errorf("保存main_event失败: %w, title: %s", err, events[0].Title)
	}
	return nil
}

func (r *eventRepository) CreateSubEvents(ctx context.Context, events []*model.SubEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&events).Error; err != nil {
		return fmt.Errorf("保存sub_event失败: %w, title: %s", err, events[0].Title)
	}
	return nil
}

func (r *eventRepository) SaveMainEvent(ctx context.Context, event *model.MainEvent) error {
	return r.db.WithContext(ctx).Model(event).Select("sub_event_ids", "registration_needed", "updated_at").Updates(event).Error
}

func (r *eventRepository) DeleteMainEvents(ctx context.Context, ids []uint64) (deleted, cascaded int64, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("main_event_id IN ?", ids).Delete(&model.SubEvent{})
		if res.Error != nil {
			return fmt.Errorf("级联删除sub_event失败: %w", res.Error)
		}
		cascaded = res.RowsAffected
		res = tx.Where("id IN ?", ids).Delete(&model.MainEvent{})
		if res.Error != nil {
			return fmt.Errorf("删除main_event失败: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return deleted, cascaded, nil
}

func (r *eventRepository) DeleteSubEvents(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.SubEvent{})
	return res.RowsAffected, res.Error
}

func (r *eventRepository) ArchiveMainEvents(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.MainEvent{}).
		Where("id IN ? AND lifecycle <> ?", ids, model.LifecycleArchived).
		Update("lifecycle", model.LifecycleArchived)
	return res.RowsAffected, res.Error
}

func (r *eventRepository) ArchiveSubEvents(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.SubEvent{}).
		Where("id IN ? AND lifecycle <> ?", ids, model.LifecycleArchived).
		Update("lifecycle", model.LifecycleArchived)
	return res.RowsAffected, res.Error
}

func (r *eventRepository) FindMainByTempKey(ctx context.Context, tempKey string) (*model.MainEvent, error) {
	if tempKey == "" {
		return nil, nil
	}
	var event model.MainEvent
	err := r.db.WithContext(ctx).
		Where("temp_key = ? AND lifecycle = ?", tempKey, model.LifecycleActive).
		Order("id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListCatalog(ctx context.Context, filter CatalogFilter, page, pageSize int) ([]*model.MainEvent, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.MainEvent{})
	if filter.Archived != nil {
		if *filter.Archived {
			db = db.Where("lifecycle = ?", model.LifecycleArchived)
		} else {
			db = db.Where("lifecycle = ?", model.LifecycleActive)
		}
	}
	if filter.City != "" {
		db = db.Where("LOWER(city) = LOWER(?)", filter.City)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.MainEvent
	if err := db.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *eventRepository) GetMainEvent(ctx context.Context, id uint64) (*model.MainEvent, error) {
	var event model.MainEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
