package handler

import (
	"github.com/bitfantasy/uplink-console/internal/materials/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActivityHandler 操作日志处理器
type ActivityHandler struct {
	repo   *repository.ActivityLogRepository
	logger *zap.Logger
}

func NewActivityHandler(repo *repository.ActivityLogRepository, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{repo: repo, logger: logger}
}

// ListByRequest 某请求单的操作日志
// GET /api/v1/materials/requests/:id/activity
func (h *ActivityHandler) ListByRequest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.repo == nil {
		Success(c, ListResponse{Items: []interface{}{}, Pagination: &Pagination{Page: 1, PageSize: 20}})
		return
	}

	page, pageSize := GetPagination(c)
	items, total, err := h.repo.FindByEntity(c.Request.Context(), "request", id, page, pageSize)
	if err != nil {
		h.logger.Error("List activity logs failed", zap.Int64("request_id", id), zap.Error(err))
		InternalError(c, "查询操作日志失败")
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}
