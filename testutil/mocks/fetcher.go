// MockFetcher 的 adagents.json 获取器测试模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/adregistry/adagents"
	"github.com/BaSui01/adregistry/types"
)

// MockFetcher 是 adagents.Fetcher 的模拟实现，记录每个域名的获取次数
type MockFetcher struct {
	mu        sync.Mutex
	manifests map[string]*adagents.Manifest
	errs      map[string]error
	calls     map[string]int
}

// NewMockFetcher 创建空的 MockFetcher；未注册的域名返回瞬时获取失败
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		manifests: make(map[string]*adagents.Manifest),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// WithManifest 为域名注册清单，返回结果按 adagents.Validate 校验
func (f *MockFetcher) WithManifest(domain string, m *adagents.Manifest) *MockFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[domain] = m
	return f
}

// WithError 让获取域名失败
func (f *MockFetcher) WithError(domain string, err error) *MockFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[domain] = err
	return f
}

// Fetch implements adagents.Fetcher.
func (f *MockFetcher) Fetch(ctx context.Context, domain string) (*adagents.Result, error) {
	f.mu.Lock()
	f.calls[domain]++
	m, ok := f.manifests[domain]
	err := f.errs[domain]
	f.mu.Unlock()

	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewError(types.ErrTransientFetchFailure, "no manifest").
			WithSubject(domain).
			WithRetryable(true)
	}
	res := adagents.Validate(domain, m)
	res.SourceURL = adagents.ManifestURL(domain)
	return res, nil
}

// Calls returns how many times domain was fetched.
func (f *MockFetcher) Calls(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[domain]
}

// TotalCalls returns the number of Fetch calls across domains.
func (f *MockFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
