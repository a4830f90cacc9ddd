package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestHandler 请求单处理器
type RequestHandler struct {
	svc    *service.RequestService
	logger *zap.Logger
}

func NewRequestHandler(svc *service.RequestService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

// List 请求单列表（置顶优先，时间倒序）
// GET /api/v1/materials/requests?year=&state=&q=
func (h *RequestHandler) List(c *gin.Context) {
	filter := service.ListFilter{
		State: c.Query("state"),
		Query: c.Query("q"),
	}
	if y := c.Query("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			BadRequest(c, "无效的年份")
			return
		}
		filter.Year = v
	}

	list, err := h.svc.List(c.Request.Context(), GetToken(c), GetUserID(c), filter)
	if err != nil {
		h.logger.Error("List material requests failed", zap.Error(err))
		upstreamError(c, err)
		return
	}
	Success(c, list)
}

// detailView 详情响应：头 + 三分组行视图
type detailView struct {
	Header          entity.RequestHeader `json:"header"`
	PrepStatus      string               `json:"prep_status"`
	CanSeeSensitive bool                 `json:"can_see_sensitive"`
	Groups          entity.GroupedLines  `json:"groups"`
	Total           int                  `json:"total"`
}

func newDetailView(v *service.RequestView) detailView {
	groups := v.Grouped()
	return detailView{
		Header:          v.Header,
		PrepStatus:      v.PrepStatus,
		CanSeeSensitive: v.CanSeeSensitive,
		Groups:          groups,
		Total:           groups.Total(),
	}
}

// Get 请求单详情
// GET /api/v1/materials/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}
	Success(c, newDetailView(view))
}

// Create 创建请求单
// POST /api/v1/materials/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var in service.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	operator, err := h.svc.Operator(c.Request.Context(), GetToken(c))
	if err != nil {
		upstreamError(c, err)
		return
	}

	created, err := h.svc.Create(c.Request.Context(), GetToken(c), operator, in)
	if err != nil {
		if errors.Is(err, service.ErrProjectNameRequired) {
			BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Create material request failed", zap.Error(err))
		upstreamError(c, err)
		return
	}
	Created(c, created)
}

// UpdateHeader 更新请求单头（nil字段不变）
// PATCH /api/v1/materials/requests/:id
func (h *RequestHandler) UpdateHeader(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.UpdateHeaderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	operator, err := h.svc.Operator(c.Request.Context(), GetToken(c))
	if err != nil {
		upstreamError(c, err)
		return
	}

	if err := h.svc.UpdateHeader(c.Request.Context(), GetToken(c), operator, id, in); err != nil {
		upstreamError(c, err)
		return
	}
	Success(c, gin.H{"id": id})
}

// Delete 删除请求单（需确认）
// DELETE /api/v1/materials/requests/:id?confirmed=true
func (h *RequestHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if c.Query("confirmed") != "true" {
		BadRequest(c, "删除请求单需要确认")
		return
	}

	operator, err := h.svc.Operator(c.Request.Context(), GetToken(c))
	if err != nil {
		upstreamError(c, err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), GetToken(c), operator, id); err != nil {
		upstreamError(c, err)
		return
	}
	Success(c, gin.H{"id": id})
}

// Pin 置顶/取消置顶（仅影响当前用户的列表排序）
// PUT /api/v1/materials/requests/:id/pin
func (h *RequestHandler) Pin(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	// 与List读取置顶集合同源：都按JWT的uid落键
	userID := GetUserID(c)
	operator := &erpapi.Identity{UserID: userID, Name: GetUserName(c)}
	if err := h.svc.Pin(c.Request.Context(), operator, userID, id, req.Pinned); err != nil {
		h.logger.Error("Pin material request failed", zap.Int64("request_id", id), zap.Error(err))
		InternalError(c, "更新置顶失败")
		return
	}
	Success(c, gin.H{"id": id, "pinned": req.Pinned})
}

// Export 导出请求单明细Excel
// GET /api/v1/materials/requests/:id/export
func (h *RequestHandler) Export(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}

	f, filename, err := h.svc.ExportXLSX(view)
	if err != nil {
		h.logger.Error("Export material request failed", zap.Int64("request_id", id), zap.Error(err))
		InternalError(c, "导出失败")
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Write export stream failed", zap.Error(err))
	}
}
