package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/uplink-console/internal/materials/repository"
	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 物料请求控制台处理器集合
type Handlers struct {
	Request  *RequestHandler
	Item     *ItemHandler
	Catalog  *CatalogHandler
	Estimate *EstimateHandler
	Activity *ActivityHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(services *service.Services, repos *repository.Repositories, logger *zap.Logger) *Handlers {
	return &Handlers{
		Request:  NewRequestHandler(services.Request, logger),
		Item:     NewItemHandler(services.Request, services.Reconcile, logger),
		Catalog:  NewCatalogHandler(services.Catalog, logger),
		Estimate: NewEstimateHandler(services.Estimate, logger),
		Activity: NewActivityHandler(repos.ActivityLog, logger),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func SessionExpired(c *gin.Context) {
	Error(c, 40101, "登录已过期，请重新登录")
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) int64 {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(int64); ok {
		return id
	}
	return 0
}

func GetUserName(c *gin.Context) string {
	name, _ := c.Get("user_name")
	if n, ok := name.(string); ok {
		return n
	}
	return ""
}

// GetToken 取出透传给上游的原始令牌
func GetToken(c *gin.Context) string {
	token, _ := c.Get("erp_token")
	if t, ok := token.(string); ok {
		return t
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// upstreamError 把上游调用错误映射为统一响应
func upstreamError(c *gin.Context, err error) {
	if erpapi.IsUnauthorized(err) {
		SessionExpired(c)
		return
	}
	var apiErr *erpapi.APIError
	if errors.As(err, &apiErr) {
		// 上游的拒绝文案原样透出，不替换成本层的固定文案
		message := apiErr.Body
		switch apiErr.Status {
		case 404:
			if message == "" {
				message = "请求单不存在"
			}
			NotFound(c, message)
		case 403:
			if message == "" {
				message = "无权访问该请求单"
			}
			Forbidden(c, message)
		default:
			if message == "" {
				message = "上游服务异常"
			}
			InternalError(c, message)
		}
		return
	}
	InternalError(c, "上游服务异常")
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return id, true
}
