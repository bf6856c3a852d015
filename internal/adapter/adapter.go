package adapter

import (
	"fmt"
	"sort"

	"EventSync/internal/adapter/filesource"
	"EventSync/internal/adapter/httpsource"
	"EventSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表：来源类型 → 工厂 ==========
var factoryRegistry = map[string]interfaces.SourceFactory{
	"file": filesource.New,
	"http": httpsource.New,
}

// Register 注册额外的来源类型（覆盖同名类型）
func Register(sourceType string, factory interfaces.SourceFactory) {
	if factory == nil {
		panic(fmt.Sprintf("来源类型%s的工厂函数不能为nil", sourceType))
	}
	if _, exists := factoryRegistry[sourceType]; exists {
		logrus.Warnf("来源类型%s已注册，将覆盖原有实现", sourceType)
	}
	factoryRegistry[sourceType] = factory
}

// GetFactory 获取指定来源类型的工厂函数
func GetFactory(sourceType string) (interfaces.SourceFactory, bool) {
	factory, ok := factoryRegistry[sourceType]
	return factory, ok
}

// ListFactories 列出所有已注册的来源类型
func ListFactories() []string {
	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
