package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
)

// 对账引擎的业务校验错误（进入网络调用之前拦截）
var (
	ErrLineNotFound         = errors.New("行项不存在")
	ErrLineLocked           = errors.New("行项已就绪(READY)，数量与使用量不可修改，也不可删除")
	ErrInvalidQuantity      = errors.New("数量必须是非负数字")
	ErrInvalidTransition    = errors.New("不允许的准备状态迁移")
	ErrConfirmationRequired = errors.New("该操作需要确认")
)

// ConfirmationError 迁移到READY前需要用户确认，引用当前请求量/使用量
type ConfirmationError struct {
	QtyRequested     float64
	EffectiveUsedQty float64
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("设为就绪需要确认：请求量 %g，使用量 %g", e.QtyRequested, e.EffectiveUsedQty)
}

// LinePatch 单行局部更新：nil字段不发送、不变更
type LinePatch struct {
	QtyRequested *float64 `json:"qty_requested"`
	QtyUsed      *float64 `json:"qty_used"`
	PrepStatus   *string  `json:"prep_status"`
	Note         *string  `json:"note"`
	// Confirmed 确认钩子：迁移到READY时必须为true（UI弹窗引用当前数量后回传）
	Confirmed bool `json:"confirmed"`
}

// patchReloadPolicy 整单重载策略表：哪些被修改的字段需要从上游整单重取
// 使用量与READY/CHANGED迁移会牵动同产品兄弟行的库存字段，只有上游能权威重算，
// 所以不能信任本地乐观合并；note等无涉字段不触发重载
var patchReloadPolicy = []struct {
	field string
	hit   func(p *LinePatch) bool
}{
	{"qty_used", func(p *LinePatch) bool { return p.QtyUsed != nil }},
	{"prep_status", func(p *LinePatch) bool {
		return p.PrepStatus != nil &&
			(*p.PrepStatus == entity.PrepStatusReady || *p.PrepStatus == entity.PrepStatusChanged)
	}},
}

func patchNeedsReload(p *LinePatch) bool {
	for _, rule := range patchReloadPolicy {
		if rule.hit(p) {
			return true
		}
	}
	return false
}

// RequestView 单个请求单的本地工作副本
// 世代计数保证过期重载结果不会覆盖更新的重载（按发起顺序，不是完成顺序）
type RequestView struct {
	Header          entity.RequestHeader
	Lines           []entity.RequestLine
	CanSeeSensitive bool
	PrepStatus      string

	mu         sync.Mutex
	generation uint64 // 已发起的最新重载世代
	applied    uint64 // 已提交到视图的世代
}

// Grouped 当前行集的三分组视图
func (v *RequestView) Grouped() entity.GroupedLines {
	return Aggregate(v.Lines)
}

func (v *RequestView) findLine(lineID int64) *entity.RequestLine {
	for i := range v.Lines {
		if v.Lines[i].ID == lineID {
			return &v.Lines[i]
		}
	}
	return nil
}

// beginReload 发起一次重载，返回本次世代号
func (v *RequestView) beginReload() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	return v.generation
}

// commitReload 提交重载结果；世代落后于已提交结果时丢弃
func (v *RequestView) commitReload(gen uint64, detail *erpapi.DetailResponse) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen <= v.applied {
		return false
	}
	v.applied = gen
	v.Header = headerFromDTO(detail.Header)
	v.Header.PrepStatus = detail.PrepStatus
	v.CanSeeSensitive = detail.CanSeeSensitive
	v.PrepStatus = detail.PrepStatus
	v.Lines = linesFromDTO(detail.Items)
	return true
}

// ReconcileEngine 对账引擎：把本地编辑逐行持久化到上游，
// 并按重载策略表决定何时整单重取以保持派生字段一致
type ReconcileEngine struct {
	api *erpapi.Client
}

func NewReconcileEngine(api *erpapi.Client) *ReconcileEngine {
	return &ReconcileEngine{api: api}
}

// Load 拉取请求单头+行项，构建工作副本
func (e *ReconcileEngine) Load(ctx context.Context, token string, requestID int64) (*RequestView, error) {
	var detail erpapi.DetailResponse
	if err := e.api.Get(ctx, token, fmt.Sprintf("/api/material-requests/%d", requestID), &detail); err != nil {
		return nil, err
	}
	v := &RequestView{}
	v.generation = 1
	v.applied = 1
	v.Header = headerFromDTO(detail.Header)
	v.Header.PrepStatus = detail.PrepStatus
	v.CanSeeSensitive = detail.CanSeeSensitive
	v.PrepStatus = detail.PrepStatus
	v.Lines = linesFromDTO(detail.Items)
	return v, nil
}

// Patch 单行局部更新：只发送变更字段，乐观应用到本地副本，
// 失败时整行回滚到修改前的值并把上游错误原文抛给调用方（不自动重试）
func (e *ReconcileEngine) Patch(ctx context.Context, token string, v *RequestView, lineID int64, p LinePatch) error {
	line := v.findLine(lineID)
	if line == nil {
		return ErrLineNotFound
	}

	// 数量校验在任何网络调用之前：非法提交不改变已存值
	if err := validateQty(p.QtyRequested); err != nil {
		return err
	}
	if err := validateQty(p.QtyUsed); err != nil {
		return err
	}

	// READY为锁定态：数量/使用量/状态字段全部拒绝
	if line.PrepStatus == entity.PrepStatusReady &&
		(p.QtyRequested != nil || p.QtyUsed != nil || p.PrepStatus != nil) {
		return ErrLineLocked
	}

	if p.PrepStatus != nil {
		if !entity.CanTransitionPrep(line.PrepStatus, *p.PrepStatus) {
			return ErrInvalidTransition
		}
		if *p.PrepStatus == entity.PrepStatusReady && !p.Confirmed {
			return &ConfirmationError{
				QtyRequested:     line.QtyRequested,
				EffectiveUsedQty: BuildLineView(*line).EffectiveUsedQty,
			}
		}
	}

	// 创建后再次编辑数量的行自动迁移到CHANGED
	if p.QtyRequested != nil && p.PrepStatus == nil && line.PrepStatus == entity.PrepStatusPreparing {
		changed := entity.PrepStatusChanged
		p.PrepStatus = &changed
	}

	// 乐观应用，保留快照用于失败回滚
	prior := *line
	applyPatch(line, &p)

	payload := erpapi.LinePatchPayload{
		QtyRequested: p.QtyRequested,
		QtyUsed:      p.QtyUsed,
		PrepStatus:   p.PrepStatus,
		Note:         p.Note,
	}
	if err := e.api.Patch(ctx, token, fmt.Sprintf("/api/material-requests/items/%d", lineID), payload, nil); err != nil {
		*line = prior
		return err
	}

	if patchNeedsReload(&p) {
		return e.reload(ctx, token, v)
	}
	return nil
}

// Add 追加行项：空单位归一为EA，数量钳制到≥0，成功后无条件整单重载
// （新行可能影响整单范围内同产品行的库存口径）
func (e *ReconcileEngine) Add(ctx context.Context, token string, v *RequestView, in entity.LineInput) error {
	if math.IsNaN(in.QtyRequested) || math.IsInf(in.QtyRequested, 0) {
		return ErrInvalidQuantity
	}
	if in.QtyRequested < 0 {
		in.QtyRequested = 0
	}
	if in.UnitSnapshot == "" {
		in.UnitSnapshot = "EA"
	}

	payload := erpapi.LineItemInput{
		ProductID:      in.ProductID,
		EstimateItemID: in.EstimateItemID,
		NameSnapshot:   in.NameSnapshot,
		SpecSnapshot:   in.SpecSnapshot,
		UnitSnapshot:   in.UnitSnapshot,
		QtyRequested:   in.QtyRequested,
		Note:           in.Note,
		Source:         in.Source,
	}
	path := fmt.Sprintf("/api/material-requests/%d/items", v.Header.ID)
	if err := e.api.Post(ctx, token, path, payload, nil); err != nil {
		return err
	}
	return e.reload(ctx, token, v)
}

// Remove 删除行项：需要确认钩子，READY行不可删除，成功后整单重载
func (e *ReconcileEngine) Remove(ctx context.Context, token string, v *RequestView, lineID int64, confirmed bool) error {
	line := v.findLine(lineID)
	if line == nil {
		return ErrLineNotFound
	}
	if line.PrepStatus == entity.PrepStatusReady {
		return ErrLineLocked
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	if err := e.api.Delete(ctx, token, fmt.Sprintf("/api/material-requests/items/%d", lineID)); err != nil {
		return err
	}
	return e.reload(ctx, token, v)
}

// MarkAllReady 整单就绪：上游批量置READY，随后整单重载
func (e *ReconcileEngine) MarkAllReady(ctx context.Context, token string, v *RequestView) error {
	path := fmt.Sprintf("/api/material-requests/%d/mark-all-ready", v.Header.ID)
	if err := e.api.Post(ctx, token, path, nil, nil); err != nil {
		return err
	}
	return e.reload(ctx, token, v)
}

// reload 整单重取；世代计数丢弃被更新重载超越的过期结果
func (e *ReconcileEngine) reload(ctx context.Context, token string, v *RequestView) error {
	gen := v.beginReload()
	var detail erpapi.DetailResponse
	if err := e.api.Get(ctx, token, fmt.Sprintf("/api/material-requests/%d", v.Header.ID), &detail); err != nil {
		return fmt.Errorf("重载请求单失败: %w", err)
	}
	v.commitReload(gen, &detail)
	return nil
}

func validateQty(q *float64) error {
	if q == nil {
		return nil
	}
	if math.IsNaN(*q) || math.IsInf(*q, 0) || *q < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func applyPatch(line *entity.RequestLine, p *LinePatch) {
	if p.QtyRequested != nil {
		line.QtyRequested = *p.QtyRequested
	}
	if p.QtyUsed != nil {
		used := *p.QtyUsed
		line.QtyUsed = &used
	}
	if p.PrepStatus != nil {
		line.PrepStatus = *p.PrepStatus
	}
	if p.Note != nil {
		line.Note = *p.Note
	}
}

// headerFromDTO DTO→实体转换
func headerFromDTO(dto erpapi.HeaderDTO) entity.RequestHeader {
	h := entity.RequestHeader{
		ID:              dto.ID,
		ProjectName:     dto.ProjectName,
		Memo:            dto.Memo,
		Status:          dto.Status,
		RequestedBy:     dto.RequestedBy,
		RequestedByName: dto.RequestedByName,
		WarehouseID:     dto.WarehouseID,
		EstimateID:      dto.EstimateID,
		CreatedAt:       dto.CreatedAt.Time,
		PrepStatus:      dto.PrepStatus,
	}
	if dto.UpdatedAt != nil {
		h.UpdatedAt = dto.UpdatedAt.Time
	}
	if dto.IsPinned != nil {
		h.IsPinned = *dto.IsPinned
	}
	return h
}

func linesFromDTO(dtos []erpapi.LineDTO) []entity.RequestLine {
	lines := make([]entity.RequestLine, 0, len(dtos))
	for _, d := range dtos {
		lines = append(lines, entity.RequestLine{
			ID:             d.ID,
			RequestID:      d.RequestID,
			ProductID:      d.ProductID,
			EstimateItemID: d.EstimateItemID,
			Source:         d.Source,
			NameSnapshot:   d.NameSnapshot,
			SpecSnapshot:   d.SpecSnapshot,
			UnitSnapshot:   d.UnitSnapshot,
			QtyRequested:   d.QtyRequested,
			QtyUsed:        d.QtyUsed,
			QtyOnHand:      d.QtyOnHand,
			PrepStatus:     d.PrepStatus,
			Note:           d.Note,
		})
	}
	return lines
}
