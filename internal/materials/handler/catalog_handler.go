package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CatalogHandler 产品目录检索处理器
// 每个用户一个防抖检索器，过期关键字的结果以204丢弃
type CatalogHandler struct {
	svc    *service.CatalogService
	logger *zap.Logger

	mu        sync.Mutex
	searchers map[int64]*service.Searcher
	window    time.Duration
}

func NewCatalogHandler(svc *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		svc:       svc,
		logger:    logger,
		searchers: make(map[int64]*service.Searcher),
	}
}

// SetDebounceWindow 覆盖默认防抖窗口（仅启动期调用）
func (h *CatalogHandler) SetDebounceWindow(window time.Duration) {
	h.window = window
}

func (h *CatalogHandler) searcherFor(userID int64) *service.Searcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.searchers[userID]
	if !ok {
		s = service.NewSearcher(h.svc, h.window)
		h.searchers[userID] = s
	}
	return s
}

// Search 关键字检索产品目录
// GET /api/v1/materials/catalog/search?q=
func (h *CatalogHandler) Search(c *gin.Context) {
	keyword := strings.TrimSpace(c.Query("q"))
	if keyword == "" {
		Success(c, []interface{}{})
		return
	}

	searcher := h.searcherFor(GetUserID(c))
	entries, err := searcher.Do(c.Request.Context(), GetToken(c), keyword)
	if err != nil {
		if errors.Is(err, service.ErrSearchSuperseded) {
			c.Status(http.StatusNoContent)
			return
		}
		h.logger.Error("Catalog search failed", zap.String("keyword", keyword), zap.Error(err))
		upstreamError(c, err)
		return
	}
	Success(c, entries)
}
