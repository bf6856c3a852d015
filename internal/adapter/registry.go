package adapter

import (
	"fmt"
	"sort"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// SourceRegistry 按配置初始化的候选事件来源实例
type SourceRegistry struct {
	logger  *logrus.Logger
	sources map[string]interfaces.CandidateSource
}

func NewSourceRegistry(cfg *config.Config, logger *logrus.Logger) *SourceRegistry {
	r := &SourceRegistry{
		logger:  logger,
		sources: make(map[string]interfaces.CandidateSource),
	}
	r.initFromFactories(cfg.Sources)
	return r
}

// initFromFactories 遍历配置中的来源，匹配工厂函数创建实例；失败的来源跳过
func (r *SourceRegistry) initFromFactories(sources map[string]config.SourceConfig) {
	for name, srcCfg := range sources {
		srcCfg := srcCfg
		factory, ok := GetFactory(srcCfg.Type)
		if !ok {
			r.logger.WithFields(logrus.Fields{"source": name, "type": srcCfg.Type, "known": ListFactories()}).Error("未知的来源类型")
			continue
		}
		src, err := factory(name, &srcCfg, r.logger)
		if err != nil {
			r.logger.WithError(err).WithField("source", name).Error("来源初始化失败")
			continue
		}
		r.sources[name] = src
		r.logger.WithFields(logrus.Fields{"source": name, "type": srcCfg.Type}).Info("来源初始化成功")
	}
}

// Add 直接注册来源实例（测试或嵌入使用）
func (r *SourceRegistry) Add(src interfaces.CandidateSource) {
	r.sources[src.GetName()] = src
}

// Get 获取来源实例
func (r *SourceRegistry) Get(name string) (interfaces.CandidateSource, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s（已初始化：%v）", interfaces.ErrUnknownSource, name, r.Names())
	}
	return src, nil
}

// Names 已初始化的来源名称（排序）
func (r *SourceRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
