// Package milestone 提供里程碑元数据的解析能力。
//
// 里程碑之间构成前置依赖图，每个里程碑还关联一组知识领域键。
// 装配器用前置集合做依赖加分，用领域键限定知识层检索范围。
package milestone

import (
	"context"
	"sync"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/engine"
)

// Milestone 表示一个学习/任务里程碑。
type Milestone struct {
	// ID 唯一标识
	ID string

	// Prerequisites 直接前置里程碑
	Prerequisites []string

	// DomainKeys 关联的知识领域键
	DomainKeys []string
}

// Registry 内存里程碑注册表
//
// 图结构在启动时注册，请求路径只读。
type Registry struct {
	milestones map[string]Milestone
	mu         sync.RWMutex
}

// NewRegistry 创建里程碑注册表。
func NewRegistry(milestones ...Milestone) *Registry {
	r := &Registry{
		milestones: make(map[string]Milestone, len(milestones)),
	}
	for _, m := range milestones {
		r.milestones[m.ID] = m
	}
	return r
}

// Register 注册或更新一个里程碑。
func (r *Registry) Register(m Milestone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.milestones[m.ID] = m
}

// Get 返回里程碑；未注册时返回 ErrMilestoneNotFound。
func (r *Registry) Get(milestoneID string) (Milestone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.milestones[milestoneID]
	if !ok {
		return Milestone{}, errors.WrapError(errors.ErrMilestoneNotFound, milestoneID)
	}
	return m, nil
}

// Prerequisites 返回直接前置里程碑列表。
func (r *Registry) Prerequisites(ctx context.Context, milestoneID string) ([]string, error) {
	m, err := r.Get(milestoneID)
	if err != nil {
		return nil, err
	}

	prereqs := make([]string, len(m.Prerequisites))
	copy(prereqs, m.Prerequisites)
	return prereqs, nil
}

// DomainKeys 返回关联的知识领域键。
func (r *Registry) DomainKeys(ctx context.Context, milestoneID string) ([]string, error) {
	m, err := r.Get(milestoneID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(m.DomainKeys))
	copy(keys, m.DomainKeys)
	return keys, nil
}

// TransitivePrerequisites 返回全部传递前置（广度优先，去重，不含自身）。
func (r *Registry) TransitivePrerequisites(ctx context.Context, milestoneID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.milestones[milestoneID]; !ok {
		return nil, errors.WrapError(errors.ErrMilestoneNotFound, milestoneID)
	}

	seen := map[string]struct{}{milestoneID: {}}
	queue := []string{milestoneID}
	var result []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		m, ok := r.milestones[current]
		if !ok {
			continue
		}
		for _, p := range m.Prerequisites {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			result = append(result, p)
			queue = append(queue, p)
		}
	}

	return result, nil
}

// 编译时接口检查
var _ engine.MilestoneResolver = (*Registry)(nil)
