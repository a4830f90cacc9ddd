package entity

import "time"

// RequestHeader 自材请求单头（上游ERP为权威数据源，本服务只读写其REST接口）
type RequestHeader struct {
	ID              int64     `json:"id"`
	ProjectName     string    `json:"project_name"`
	Memo            string    `json:"memo"`
	Status          string    `json:"status"` // ONGOING/DONE/CANCELED，由上游工作流变更，本服务只读
	RequestedBy     int64     `json:"requested_by"`
	RequestedByName string    `json:"requested_by_name"`
	WarehouseID     *int64    `json:"warehouse_id"`
	EstimateID      *int64    `json:"estimate_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// IsPinned 上游标志与本地置顶集合的合并结果（本地只做加法，见ordering.go）
	IsPinned bool `json:"is_pinned"`
	// PrepStatus 整单准备状态汇总：任一行PREPARING则PREPARING，否则READY
	PrepStatus string `json:"prep_status"`
}

// DisplayName 列表展示名：优先事业名，空则备注
func (h *RequestHeader) DisplayName() string {
	if h.ProjectName != "" {
		return h.ProjectName
	}
	return h.Memo
}

// 请求单状态
const (
	RequestStatusOngoing  = "ONGOING"
	RequestStatusDone     = "DONE"
	RequestStatusCanceled = "CANCELED"
)

// RequestLine 自材请求行项
// 快照字段在创建时与来源（见积/产品主数据）解耦，来源记录后续变更不会回流
type RequestLine struct {
	ID             int64    `json:"id"` // 0 表示尚未持久化的草稿行
	RequestID      int64    `json:"request_id"`
	ProductID      *int64   `json:"product_id"`
	EstimateItemID *int64   `json:"estimate_item_id"`
	Source         string   `json:"source"` // 上游来源提示串，历史版本不一致，仅作参考信号
	NameSnapshot   string   `json:"item_name_snapshot"`
	SpecSnapshot   string   `json:"spec_snapshot"`
	UnitSnapshot   string   `json:"unit_snapshot"`
	QtyRequested   float64  `json:"qty_requested"`
	QtyUsed        *float64 `json:"qty_used"`    // 敏感字段，非管理员/运营侧响应中为null
	QtyOnHand      *float64 `json:"qty_on_hand"` // 仅产品关联行由上游提供，其余为null
	PrepStatus     string   `json:"prep_status"`
	Note           string   `json:"note"`
}

// 行项准备状态
const (
	PrepStatusPreparing = "PREPARING"
	PrepStatusChanged   = "CHANGED"
	PrepStatusReady     = "READY"
)

// ValidPrepTransitions 准备状态允许的迁移
// READY是锁定态：本服务的公开契约不提供退出READY的迁移（回退须走上游显式操作）
var ValidPrepTransitions = map[string][]string{
	PrepStatusPreparing: {PrepStatusChanged, PrepStatusReady},
	PrepStatusChanged:   {PrepStatusReady},
	PrepStatusReady:     {},
}

// CanTransitionPrep 校验准备状态迁移是否允许
func CanTransitionPrep(from, to string) bool {
	if from == to {
		return true
	}
	for _, t := range ValidPrepTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Provenance 行项来源三分类，由Classify从行字段纯函数推导，不落库
type Provenance string

const (
	ProvenanceEstimate Provenance = "ESTIMATE"
	ProvenanceCatalog  Provenance = "CATALOG"
	ProvenanceManual   Provenance = "MANUAL"
)

// LineView 行项展示视图：RequestLine + 派生字段，只读，不回写
type LineView struct {
	RequestLine

	Provenance Provenance `json:"provenance"`
	// EffectiveUsedQty 有效使用量：qty_used缺省或（为0且qty_requested>0）时回落到qty_requested
	EffectiveUsedQty float64 `json:"effective_used_qty"`
	// StockDelta 库存余量 = qty_on_hand - effective_used_qty；qty_on_hand未知时为null，绝不默认0
	StockDelta *float64 `json:"stock_delta"`
}

// GroupedLines 三组划分结果，组内保持输入相对顺序
type GroupedLines struct {
	Estimate []LineView `json:"estimate"`
	Catalog  []LineView `json:"catalog"`
	Manual   []LineView `json:"manual"`
}

// Total 三组行数合计
func (g *GroupedLines) Total() int {
	return len(g.Estimate) + len(g.Catalog) + len(g.Manual)
}

// CatalogEntry 产品目录检索结果的归一化条目
type CatalogEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Spec string `json:"spec"`
	Unit string `json:"unit"`
}

// LineInput 新增行项的提交载荷
type LineInput struct {
	ProductID      *int64  `json:"product_id"`
	EstimateItemID *int64  `json:"estimate_item_id"`
	NameSnapshot   string  `json:"item_name_snapshot"`
	SpecSnapshot   string  `json:"spec_snapshot"`
	UnitSnapshot   string  `json:"unit_snapshot"`
	QtyRequested   float64 `json:"qty_requested"`
	Note           string  `json:"note"`
	Source         string  `json:"source"`
}
