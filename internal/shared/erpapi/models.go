package erpapi

import (
	"encoding/json"
	"time"
)

// 上游ERP自材请求接口的DTO
// 字段名与上游保持一致（snake_case），实体转换在materials服务层完成

// Timestamp 上游时间字段的宽松解码
// 解析不出来落回零值，不让一条坏时间戳拖垮整个响应的解码；
// 零值时间在列表排序里自然沉底
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// HeaderDTO 请求单头
type HeaderDTO struct {
	ID              int64      `json:"id"`
	ProjectID       *int64     `json:"project_id"`
	ProjectName     string     `json:"project_name"`
	Memo            string     `json:"memo"`
	Status          string     `json:"status"`
	WarehouseID     *int64     `json:"warehouse_id"`
	EstimateID      *int64     `json:"estimate_id"`
	RequestedBy     int64      `json:"requested_by"`
	RequestedByName string     `json:"requested_by_name"`
	CreatedAt       Timestamp  `json:"created_at"`
	UpdatedAt       *Timestamp `json:"updated_at"`
	PrepStatus      string     `json:"prep_status"`
	IsPinned        *bool      `json:"is_pinned"` // 部分上游版本不下发该字段
}

// LineDTO 请求行项
type LineDTO struct {
	ID             int64    `json:"id"`
	RequestID      int64    `json:"material_request_id"`
	ProductID      *int64   `json:"product_id"`
	EstimateItemID *int64   `json:"estimate_item_id"`
	Source         string   `json:"source"`
	NameSnapshot   string   `json:"item_name_snapshot"`
	SpecSnapshot   string   `json:"spec_snapshot"`
	UnitSnapshot   string   `json:"unit_snapshot"`
	QtyRequested   float64  `json:"qty_requested"`
	QtyUsed        *float64 `json:"qty_used"`
	QtyOnHand      *float64 `json:"qty_on_hand"`
	PrepStatus     string   `json:"prep_status"`
	Note           string   `json:"note"`
}

// ListResponse GET /api/material-requests
type ListResponse struct {
	CanSeeSensitive bool        `json:"can_see_sensitive"`
	Items           []HeaderDTO `json:"items"`
}

// DetailResponse GET /api/material-requests/{id}
type DetailResponse struct {
	CanSeeSensitive bool      `json:"can_see_sensitive"`
	Header          HeaderDTO `json:"header"`
	PrepStatus      string    `json:"prep_status"`
	Items           []LineDTO `json:"items"`
}

// CreateRequestPayload POST /api/material-requests
type CreateRequestPayload struct {
	ProjectID          *int64          `json:"project_id,omitempty"`
	ClientID           *int64          `json:"client_id,omitempty"`
	EstimateID         *int64          `json:"estimate_id,omitempty"`
	EstimateRevisionID *int64          `json:"estimate_revision_id,omitempty"`
	ProjectName        string          `json:"project_name"`
	WarehouseID        *int64          `json:"warehouse_id,omitempty"`
	Memo               string          `json:"memo"`
	Items              []LineItemInput `json:"items"`
}

// LineItemInput 行项提交载荷（创建与追加共用）
type LineItemInput struct {
	ProductID      *int64  `json:"product_id,omitempty"`
	EstimateItemID *int64  `json:"estimate_item_id,omitempty"`
	NameSnapshot   string  `json:"item_name_snapshot"`
	SpecSnapshot   string  `json:"spec_snapshot"`
	UnitSnapshot   string  `json:"unit_snapshot"`
	QtyRequested   float64 `json:"qty_requested"`
	Note           string  `json:"note"`
	Source         string  `json:"source"`
}

// CreateResponse 创建结果
type CreateResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// HeaderPatchPayload PATCH /api/material-requests/{id}（COALESCE语义，nil字段不变）
type HeaderPatchPayload struct {
	ProjectName *string `json:"project_name,omitempty"`
	Memo        *string `json:"memo,omitempty"`
	WarehouseID *int64  `json:"warehouse_id,omitempty"`
}

// LinePatchPayload PATCH /api/material-requests/items/{itemId}（只发送变更字段）
type LinePatchPayload struct {
	QtyRequested *float64 `json:"qty_requested,omitempty"`
	QtyUsed      *float64 `json:"qty_used,omitempty"`
	PrepStatus   *string  `json:"prep_status,omitempty"`
	Note         *string  `json:"note,omitempty"`
}

// MeResponse GET /auth/me
type MeResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	RoleID *int64 `json:"role_id"`
}

// 上游角色ID（与ERP users.role_id约定一致）
const (
	RoleAdminID    int64 = 6
	RoleOperatorID int64 = 7
)

// CanSeeSensitive 管理员/运营可见敏感字段（使用量、库存余量）
func (m *MeResponse) CanSeeSensitive() bool {
	if m.RoleID == nil {
		return false
	}
	return *m.RoleID == RoleAdminID || *m.RoleID == RoleOperatorID
}

// EstimateDTO 见积文档概要
type EstimateDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ClientName  string `json:"client_name"`
	Status      string `json:"status"`
	ProjectName string `json:"project_name"`
}

// EstimateListResponse GET /api/estimates?status=ONGOING
type EstimateListResponse struct {
	Items []EstimateDTO `json:"items"`
}

// EstimateSection 见积分区；section_type为MATERIAL的分区是自材抽取的唯一输入
type EstimateSection struct {
	ID          int64              `json:"id"`
	SectionType string             `json:"section_type"`
	Title       string             `json:"title"`
	Lines       []EstimateLineItem `json:"lines"`
}

// EstimateLineItem 见积行
type EstimateLineItem struct {
	ID        int64   `json:"id"`
	ProductID *int64  `json:"product_id"`
	Name      string  `json:"name"`
	Spec      string  `json:"spec"`
	Unit      string  `json:"unit"`
	Qty       float64 `json:"qty"`
}

// EstimateDetailResponse GET /api/estimates/{id}
type EstimateDetailResponse struct {
	ID       int64             `json:"id"`
	Title    string            `json:"title"`
	Sections []EstimateSection `json:"sections"`
}

// ProductDTO 产品目录原始条目（不同上游版本字段名不稳定，归一化在catalog服务做）
type ProductDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Spec string `json:"spec"`
	Unit string `json:"unit"`
}

// ProductListResponse GET /api/products
type ProductListResponse struct {
	Items []ProductDTO `json:"items"`
}
