package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
)

// ErrSearchSuperseded 本次检索已被更晚发起的检索取代，结果不应上屏
var ErrSearchSuperseded = errors.New("检索已被更新的关键字取代")

// CatalogService 产品目录检索
// 不同上游版本的检索参数不一致，按固定顺序逐个端点尝试，
// 第一个不报错的端点即采用（无论结果多少），最后兜底无过滤全量端点
type CatalogService struct {
	api *erpapi.Client
}

func NewCatalogService(api *erpapi.Client) *CatalogService {
	return &CatalogService{api: api}
}

// searchPaths 端点变体链：keyword参数 → q参数 → 无过滤兜底
func searchPaths(keyword string) []string {
	escaped := url.QueryEscape(keyword)
	return []string{
		"/api/products?keyword=" + escaped,
		"/api/products?q=" + escaped,
		"/api/products",
	}
}

// Search 目录检索：端点回退 + 条目归一化 + 客户端防御性过滤
// 防御性过滤叠在服务端过滤之上，兼容忽略关键字参数的上游版本
func (s *CatalogService) Search(ctx context.Context, token, keyword string) ([]entity.CatalogEntry, error) {
	var resp erpapi.ProductListResponse
	var lastErr error
	ok := false
	for _, path := range searchPaths(keyword) {
		resp = erpapi.ProductListResponse{}
		if err := s.api.Get(ctx, token, path, &resp); err != nil {
			if erpapi.IsUnauthorized(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		ok = true
		break
	}
	if !ok {
		return nil, lastErr
	}

	needle := strings.ToLower(strings.TrimSpace(keyword))
	entries := make([]entity.CatalogEntry, 0, len(resp.Items))
	for _, p := range resp.Items {
		// 无有效id或空名称的条目直接丢弃
		if p.ID <= 0 || strings.TrimSpace(p.Name) == "" {
			continue
		}
		if needle != "" {
			haystack := strings.ToLower(p.Name + " " + p.Spec)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		entries = append(entries, entity.CatalogEntry{
			ID:   p.ID,
			Name: p.Name,
			Spec: p.Spec,
			Unit: p.Unit,
		})
	}
	return entries, nil
}

// Searcher 防抖检索器：窗口内的连续关键字变更坍缩为一次在途检索
// 已被取代的在途检索即使后完成也不得覆盖更新检索的结果——
// 按发起顺序判定最后写者，而不是按完成顺序（守住乱序完成）
type Searcher struct {
	svc    *CatalogService
	window time.Duration

	mu     sync.Mutex
	seq    uint64 // 最近一次受理的关键字序号
	issued uint64 // 最近一次真正发出的检索序号
}

// NewSearcher window≈300ms对应控制台输入防抖
func NewSearcher(svc *CatalogService, window time.Duration) *Searcher {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &Searcher{svc: svc, window: window}
}

// Do 防抖检索：阻塞到窗口收敛后发出请求并返回结果
// 等待期间或在途期间有更新的关键字进来时，本次调用返回ErrSearchSuperseded
func (s *Searcher) Do(ctx context.Context, token, keyword string) ([]entity.CatalogEntry, error) {
	s.mu.Lock()
	s.seq++
	mySeq := s.seq
	s.mu.Unlock()

	// 每次调用各自持有窗口计时器：被取代的调用在自己的窗口到期后
	// 发现序号落后并返回，不会在等待中悬死
	timer := time.NewTimer(s.window)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	// 窗口收敛后检查是否已被更新的关键字取代
	s.mu.Lock()
	if s.seq != mySeq {
		s.mu.Unlock()
		return nil, ErrSearchSuperseded
	}
	s.issued = mySeq
	s.mu.Unlock()

	entries, err := s.svc.Search(ctx, token, keyword)

	// 交付前按发起序号再判一次：迟到的结果不上屏
	s.mu.Lock()
	stale := s.issued != mySeq
	s.mu.Unlock()
	if stale {
		return nil, ErrSearchSuperseded
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}
