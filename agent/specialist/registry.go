package specialist

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

// Registry 按类别管理专家变体
type Registry struct {
	mu         sync.RWMutex
	byCategory map[types.Category]Specialist
	logger     *zap.Logger
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byCategory: make(map[types.Category]Specialist),
		logger:     logger.With(zap.String("component", "specialist_registry")),
	}
}

// Register 注册专家到其类别，已存在的类别会被替换
func (r *Registry) Register(s Specialist) error {
	if s == nil {
		return fmt.Errorf("specialist is nil")
	}
	d := s.Descriptor()
	if !d.Category.Valid() {
		return fmt.Errorf("specialist %q has unknown category %q", d.Name, d.Category)
	}
	if d.Stage < StagePlanning || d.Stage > StageReflection {
		return fmt.Errorf("specialist %q has invalid stage %d", d.Name, d.Stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byCategory[d.Category]; ok {
		r.logger.Info("specialist replaced",
			zap.String("category", string(d.Category)),
			zap.String("previous", prev.Descriptor().Name),
			zap.String("name", d.Name),
		)
	}
	r.byCategory[d.Category] = s
	r.logger.Debug("specialist registered",
		zap.String("category", string(d.Category)),
		zap.String("name", d.Name),
		zap.Int("stage", int(d.Stage)),
	)
	return nil
}

// Unregister 移除类别的专家
func (r *Registry) Unregister(category types.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byCategory, category)
}

// Get 按类别查找专家
func (r *Registry) Get(category types.Category) (Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byCategory[category]
	return s, ok
}

// List 按固定优先级顺序返回所有专家
func (r *Registry) List() []Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Specialist, 0, len(r.byCategory))
	for _, s := range r.byCategory {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Category.Priority() < out[j].Descriptor().Category.Priority()
	})
	return out
}

// Descriptors 返回所有专家的描述，按优先级排序
func (r *Registry) Descriptors() []Descriptor {
	list := r.List()
	out := make([]Descriptor, len(list))
	for i, s := range list {
		out[i] = s.Descriptor()
	}
	return out
}
