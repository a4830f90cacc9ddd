package handler

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ItemHandler 行项处理器：所有行级编辑都经过对账引擎
type ItemHandler struct {
	svc    *service.RequestService
	engine *service.ReconcileEngine
	logger *zap.Logger
}

func NewItemHandler(svc *service.RequestService, engine *service.ReconcileEngine, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{svc: svc, engine: engine, logger: logger}
}

// Add 新增行项（提交后整单重载）
// POST /api/v1/materials/requests/:id/items
func (h *ItemHandler) Add(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in entity.LineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}

	if err := h.engine.Add(c.Request.Context(), GetToken(c), view, in); err != nil {
		h.lineError(c, err)
		return
	}

	h.auditLine(c, id, 0, "add_item", "", "", fmt.Sprintf("名称: %s", in.NameSnapshot))
	Created(c, newDetailView(view))
}

// Patch 修改行项（nil字段不变；迁移到READY需confirmed）
// PATCH /api/v1/materials/requests/:id/items/:itemId
func (h *ItemHandler) Patch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return
	}
	var patch service.LinePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}

	from := ""
	if line := findLineStatus(view, itemID); line != "" {
		from = line
	}

	if err := h.engine.Patch(c.Request.Context(), GetToken(c), view, itemID, patch); err != nil {
		h.lineError(c, err)
		return
	}

	to := from
	if patch.PrepStatus != nil {
		to = *patch.PrepStatus
	}
	h.auditLine(c, id, itemID, "patch_item", from, to, "")
	Success(c, newDetailView(view))
}

// Remove 删除行项（需确认，READY行不可删）
// DELETE /api/v1/materials/requests/:id/items/:itemId?confirmed=true
func (h *ItemHandler) Remove(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}

	confirmed := c.Query("confirmed") == "true"
	if err := h.engine.Remove(c.Request.Context(), GetToken(c), view, itemID, confirmed); err != nil {
		h.lineError(c, err)
		return
	}

	h.auditLine(c, id, itemID, "remove_item", "", "", "")
	Success(c, newDetailView(view))
}

// MarkAllReady 一键把全部行项置为READY
// POST /api/v1/materials/requests/:id/mark-all-ready
func (h *ItemHandler) MarkAllReady(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), GetToken(c), id)
	if err != nil {
		upstreamError(c, err)
		return
	}

	if err := h.engine.MarkAllReady(c.Request.Context(), GetToken(c), view); err != nil {
		h.lineError(c, err)
		return
	}

	h.auditLine(c, id, 0, "mark_all_ready", "", entity.PrepStatusReady, "")
	Success(c, newDetailView(view))
}

// lineError 行级业务错误到响应码的映射
func (h *ItemHandler) lineError(c *gin.Context, err error) {
	var confirm *service.ConfirmationError
	switch {
	case errors.Is(err, service.ErrLineNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrLineLocked):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidTransition):
		BadRequest(c, err.Error())
	case errors.As(err, &confirm):
		c.JSON(409, Response{
			Code:    40901,
			Message: confirm.Error(),
			Data: gin.H{
				"confirm_required":   true,
				"qty_requested":      confirm.QtyRequested,
				"effective_used_qty": confirm.EffectiveUsedQty,
			},
		})
	case errors.Is(err, service.ErrConfirmationRequired):
		Conflict(c, err.Error())
	default:
		h.logger.Error("Line operation failed", zap.Error(err))
		upstreamError(c, err)
	}
}

// auditLine 操作人直接取JWT声明，不为写日志再打一次上游
func (h *ItemHandler) auditLine(c *gin.Context, requestID, itemID int64, action, from, to, content string) {
	operator := &erpapi.Identity{UserID: GetUserID(c), Name: GetUserName(c)}
	if itemID > 0 && content == "" {
		content = fmt.Sprintf("行项 #%d", itemID)
	}
	h.svc.Audit(c.Request.Context(), operator, "request", requestID, action, from, to, content)
}

func findLineStatus(v *service.RequestView, lineID int64) string {
	for _, line := range v.Lines {
		if line.ID == lineID {
			return line.PrepStatus
		}
	}
	return ""
}
