package llm

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry 按名称管理已构建的 Provider, 并发安全.
// 乐观方、怀疑方、校验器与委托合成器都从同一个注册表按名称取 Provider.
type ProviderRegistry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewProviderRegistry 创建空注册表
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register 以 name 注册 Provider, 同名覆盖.
func (r *ProviderRegistry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get 按名称获取
func (r *ProviderRegistry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Resolve 与 Get 相同, 未注册时返回错误.
func (r *ProviderRegistry) Resolve(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider %q not registered (have %v)", name, r.List())
	}
	return p, nil
}

// List 返回排序后的名称
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 已注册数量
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
