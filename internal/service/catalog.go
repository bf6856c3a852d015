package service

import (
	"context"
	"errors"
	"fmt"

	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrEventNotFound 主事件不存在
var ErrEventNotFound = errors.New("event not found")

// CatalogService 面向前端的只读目录查询
type CatalogService struct {
	repo   repository.EventRepository
	logger *logrus.Logger
}

// NewCatalogService 创建 CatalogService
func NewCatalogService(repo repository.EventRepository, logger *logrus.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

// EventCluster 主事件及其子事件
type EventCluster struct {
	*model.MainEvent
	SubEvents []*model.SubEvent `json:"sub_events"`
}

// EventListResult 列表返回
type EventListResult struct {
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int64           `json:"total"`
	Items    []*EventCluster `json:"items"`
}

// ListEvents 按条件分页返回主事件，附带子事件
func (s *CatalogService) ListEvents(ctx context.Context, filter repository.CatalogFilter, page, pageSize int) (*EventListResult, error) {
	mains, total, err := s.repo.ListCatalog(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	items, err := s.withSubs(ctx, mains, filter.Archived != nil && !*filter.Archived)
	if err != nil {
		return nil, err
	}
	return &EventListResult{Page: page, PageSize: pageSize, Total: total, Items: items}, nil
}

// GetEvent 主事件详情（含全部子事件）
func (s *CatalogService) GetEvent(ctx context.Context, id uint64) (*EventCluster, error) {
	m, err := s.repo.GetMainEvent(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询主事件%d失败: %w", id, err)
	}
	items, err := s.withSubs(ctx, []*model.MainEvent{m}, false)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// ActiveClusters 全部未归档主事件及其未归档子事件（日历导出用）
func (s *CatalogService) ActiveClusters(ctx context.Context) ([]*EventCluster, error) {
	mains, err := s.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	return s.withSubs(ctx, mains, true)
}

func (s *CatalogService) withSubs(ctx context.Context, mains []*model.MainEvent, activeOnly bool) ([]*EventCluster, error) {
	items := make([]*EventCluster, 0, len(mains))
	if len(mains) == 0 {
		return items, nil
	}
	ids := make([]uint64, len(mains))
	for i, m := range mains {
		ids[i] = m.ID
	}
	subs, err := s.repo.ListSubEvents(ctx, repository.SubFilter{MainIDs: ids, ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	byParent := make(map[uint64][]*model.SubEvent, len(mains))
	for _, sub := range subs {
		if sub.MainEventID != nil {
			byParent[*sub.MainEventID] = append(byParent[*sub.MainEventID], sub)
		}
	}
	for _, m := range mains {
		children := byParent[m.ID]
		if children == nil {
			children = []*model.SubEvent{}
		}
		items = append(items, &EventCluster{MainEvent: m, SubEvents: children})
	}
	return items, nil
}
