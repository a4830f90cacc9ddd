package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/materials/repository"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
	"go.uber.org/zap"
)

// ErrProjectNameRequired 创建前的本地校验：事业名必填，不发起上游调用
var ErrProjectNameRequired = errors.New("事业名不能为空")

// Services 服务集合
type Services struct {
	Request   *RequestService
	Reconcile *ReconcileEngine
	Catalog   *CatalogService
	Estimate  *EstimateService
}

// NewServices 创建服务集合
func NewServices(api *erpapi.Client, sessions *erpapi.SessionStore, repos *repository.Repositories, logger *zap.Logger) *Services {
	request := NewRequestService(api, sessions, repos, logger)
	return &Services{
		Request:   request,
		Reconcile: request.Engine(),
		Catalog:   NewCatalogService(api),
		Estimate:  NewEstimateService(api),
	}
}

// ListFilter 列表过滤条件
type ListFilter struct {
	Year  int
	State string
	Query string
}

// RequestList 列表结果
type RequestList struct {
	CanSeeSensitive bool                   `json:"can_see_sensitive"`
	Items           []entity.RequestHeader `json:"items"`
}

// RequestService 自材请求单服务：列表/详情/建改删/置顶
type RequestService struct {
	api      *erpapi.Client
	sessions *erpapi.SessionStore
	repos    *repository.Repositories
	logger   *zap.Logger
	engine   *ReconcileEngine
}

func NewRequestService(api *erpapi.Client, sessions *erpapi.SessionStore, repos *repository.Repositories, logger *zap.Logger) *RequestService {
	return &RequestService{
		api:      api,
		sessions: sessions,
		repos:    repos,
		logger:   logger,
		engine:   NewReconcileEngine(api),
	}
}

// Engine 对账引擎（行项编辑走这里）
func (s *RequestService) Engine() *ReconcileEngine {
	return s.engine
}

// Operator 解析当前操作人身份（缓存或上游 /api/auth/me）
func (s *RequestService) Operator(ctx context.Context, token string) (*erpapi.Identity, error) {
	return s.sessions.Resolve(ctx, token)
}

// List 请求单列表：上游拉取 → 本地置顶合并 → 确定性排序
// 上游拉取失败时派生集合重置为空并把错误抛给调用方
func (s *RequestService) List(ctx context.Context, token string, userID int64, f ListFilter) (*RequestList, error) {
	path := "/api/material-requests?" + listQuery(f)
	var resp erpapi.ListResponse
	if err := s.api.Get(ctx, token, path, &resp); err != nil {
		return nil, err
	}

	headers := make([]entity.RequestHeader, 0, len(resp.Items))
	for _, dto := range resp.Items {
		headers = append(headers, headerFromDTO(dto))
	}

	pins, err := s.repos.Pin.Set(ctx, userID)
	if err != nil {
		// 置顶集合不可用只降级为不置顶，不影响列表本身
		s.logger.Warn("Load pinned set failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	MergePins(headers, pins)
	OrderHeaders(headers)

	return &RequestList{CanSeeSensitive: resp.CanSeeSensitive, Items: headers}, nil
}

func listQuery(f ListFilter) string {
	q := url.Values{}
	if f.Year > 0 {
		q.Set("year", fmt.Sprintf("%d", f.Year))
	}
	if f.State != "" {
		q.Set("state", f.State)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	return q.Encode()
}

// Get 请求单详情：拉取 → 分类聚合 → 分组视图
func (s *RequestService) Get(ctx context.Context, token string, requestID int64) (*RequestView, error) {
	return s.engine.Load(ctx, token, requestID)
}

// CreateInput 创建请求单的输入
type CreateInput struct {
	ProjectID   *int64             `json:"project_id"`
	ClientID    *int64             `json:"client_id"`
	EstimateID  *int64             `json:"estimate_id"`
	ProjectName string             `json:"project_name"`
	WarehouseID *int64             `json:"warehouse_id"`
	Memo        string             `json:"memo"`
	Items       []entity.LineInput `json:"items"`
}

// Create 创建请求单
// 事业名必填属本地校验，不发起上游调用；行项在提交前归一化单位并钳制数量
func (s *RequestService) Create(ctx context.Context, token string, operator *erpapi.Identity, in CreateInput) (*erpapi.CreateResponse, error) {
	if strings.TrimSpace(in.ProjectName) == "" {
		return nil, ErrProjectNameRequired
	}

	payload := erpapi.CreateRequestPayload{
		ProjectID:   in.ProjectID,
		ClientID:    in.ClientID,
		EstimateID:  in.EstimateID,
		ProjectName: in.ProjectName,
		WarehouseID: in.WarehouseID,
		Memo:        in.Memo,
	}
	for _, item := range in.Items {
		if item.UnitSnapshot == "" {
			item.UnitSnapshot = "EA"
		}
		if item.QtyRequested < 0 {
			item.QtyRequested = 0
		}
		payload.Items = append(payload.Items, erpapi.LineItemInput{
			ProductID:      item.ProductID,
			EstimateItemID: item.EstimateItemID,
			NameSnapshot:   item.NameSnapshot,
			SpecSnapshot:   item.SpecSnapshot,
			UnitSnapshot:   item.UnitSnapshot,
			QtyRequested:   item.QtyRequested,
			Note:           item.Note,
			Source:         item.Source,
		})
	}

	var created erpapi.CreateResponse
	if err := s.api.Post(ctx, token, "/api/material-requests", payload, &created); err != nil {
		return nil, err
	}

	s.audit(ctx, operator, "request", created.ID, "create", "", created.Status,
		fmt.Sprintf("事业名: %s, 行项数: %d", in.ProjectName, len(payload.Items)))
	return &created, nil
}

// UpdateHeaderInput 请求单头局部更新（nil字段不变）
type UpdateHeaderInput struct {
	ProjectName *string `json:"project_name"`
	Memo        *string `json:"memo"`
	WarehouseID *int64  `json:"warehouse_id"`
}

// UpdateHeader 更新请求单头
func (s *RequestService) UpdateHeader(ctx context.Context, token string, operator *erpapi.Identity, requestID int64, in UpdateHeaderInput) error {
	payload := erpapi.HeaderPatchPayload{
		ProjectName: in.ProjectName,
		Memo:        in.Memo,
		WarehouseID: in.WarehouseID,
	}
	if err := s.api.Patch(ctx, token, fmt.Sprintf("/api/material-requests/%d", requestID), payload, nil); err != nil {
		return err
	}
	s.audit(ctx, operator, "request", requestID, "patch", "", "", "更新请求单头")
	return nil
}

// Delete 删除请求单（确认钩子由handler层收集）
func (s *RequestService) Delete(ctx context.Context, token string, operator *erpapi.Identity, requestID int64) error {
	if err := s.api.Delete(ctx, token, fmt.Sprintf("/api/material-requests/%d", requestID)); err != nil {
		return err
	}
	s.audit(ctx, operator, "request", requestID, "delete", "", "", "删除请求单")
	return nil
}

// Pin 置顶/取消置顶
// 置顶集合与列表读取都按同一路身份（JWT声明的uid）落键，
// 不依赖上游身份解析——解析降级时落错键会让置顶悄然丢失
func (s *RequestService) Pin(ctx context.Context, operator *erpapi.Identity, userID, requestID int64, pinned bool) error {
	var err error
	action := "pin"
	if pinned {
		err = s.repos.Pin.Pin(ctx, userID, requestID)
	} else {
		action = "unpin"
		err = s.repos.Pin.Unpin(ctx, userID, requestID)
	}
	if err != nil {
		return fmt.Errorf("更新置顶集合失败: %w", err)
	}
	s.audit(ctx, operator, "request", requestID, action, "", "", "")
	return nil
}

// Audit 记录一条操作日志（行项编辑等handler侧操作使用）
func (s *RequestService) Audit(ctx context.Context, operator *erpapi.Identity, entityType string, entityID int64, action, from, to, content string) {
	s.audit(ctx, operator, entityType, entityID, action, from, to, content)
}

// audit 操作日志：日志仓库未配置或写入失败都不阻断主流程
func (s *RequestService) audit(ctx context.Context, operator *erpapi.Identity, entityType string, entityID int64, action, from, to, content string) {
	if s.repos == nil || s.repos.ActivityLog == nil {
		return
	}
	opID, opName := "", ""
	if operator != nil {
		opID = fmt.Sprintf("%d", operator.UserID)
		opName = operator.Name
	}
	s.repos.ActivityLog.LogActivity(ctx, entityType, entityID, action, from, to, content, opID, opName)
}
