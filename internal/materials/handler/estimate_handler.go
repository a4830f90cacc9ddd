package handler

import (
	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EstimateHandler 见积（报价单）处理器：供创建请求单时抽取物料行
type EstimateHandler struct {
	svc    *service.EstimateService
	logger *zap.Logger
}

func NewEstimateHandler(svc *service.EstimateService, logger *zap.Logger) *EstimateHandler {
	return &EstimateHandler{svc: svc, logger: logger}
}

// ListOngoing 进行中的见积列表
// GET /api/v1/materials/estimates
func (h *EstimateHandler) ListOngoing(c *gin.Context) {
	estimates, err := h.svc.ListOngoing(c.Request.Context(), GetToken(c))
	if err != nil {
		h.logger.Error("List ongoing estimates failed", zap.Error(err))
		upstreamError(c, err)
		return
	}
	Success(c, estimates)
}

// ExtractLines 从见积抽取物料行（仅MATERIAL分区，去重后返回）
// GET /api/v1/materials/estimates/:id/lines
func (h *EstimateHandler) ExtractLines(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lines, err := h.svc.ExtractMaterialLines(c.Request.Context(), GetToken(c), id)
	if err != nil {
		h.logger.Error("Extract estimate lines failed", zap.Int64("estimate_id", id), zap.Error(err))
		upstreamError(c, err)
		return
	}
	Success(c, gin.H{"items": lines, "total": len(lines)})
}
