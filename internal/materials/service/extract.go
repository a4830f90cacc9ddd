package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
)

// sourceFromEstimate 见积抽取行默认带的来源提示
const sourceFromEstimate = "FROM_ESTIMATE"

// EstimateService 见积协作方：列表透传与MATERIAL分区抽取
type EstimateService struct {
	api *erpapi.Client
}

func NewEstimateService(api *erpapi.Client) *EstimateService {
	return &EstimateService{api: api}
}

// ListOngoing 进行中的见积列表（新建请求单时的来源选择）
func (s *EstimateService) ListOngoing(ctx context.Context, token string) ([]erpapi.EstimateDTO, error) {
	var resp erpapi.EstimateListResponse
	if err := s.api.Get(ctx, token, "/api/estimates?status=ONGOING", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ExtractMaterialLines 从见积文档抽取自材行
// 仅section_type为MATERIAL的分区参与；抽取后做一次性归一化与去重：
//   - 无法解析出estimate_item_id的行强制降为MANUAL（孤儿见积引用不得混入可信的见积分组）
//   - 组合键(product_id, name, spec, unit, provenance)去重，保留首次出现
func (s *EstimateService) ExtractMaterialLines(ctx context.Context, token string, estimateID int64) ([]entity.LineInput, error) {
	var detail erpapi.EstimateDetailResponse
	if err := s.api.Get(ctx, token, fmt.Sprintf("/api/estimates/%d", estimateID), &detail); err != nil {
		return nil, err
	}

	var inputs []entity.LineInput
	for _, section := range detail.Sections {
		if section.SectionType != "MATERIAL" {
			continue
		}
		for _, l := range section.Lines {
			in := entity.LineInput{
				ProductID:    l.ProductID,
				NameSnapshot: l.Name,
				SpecSnapshot: l.Spec,
				UnitSnapshot: l.Unit,
				QtyRequested: l.Qty,
				Source:       sourceFromEstimate,
			}
			if l.ID > 0 {
				itemID := l.ID
				in.EstimateItemID = &itemID
			} else {
				// 归一化只发生在抽取入口，不会重分类已持久化的行
				// 未确认的product_id一并丢弃，否则分类器会按目录规则抢先命中
				in.Source = "MANUAL"
				in.ProductID = nil
			}
			inputs = append(inputs, in)
		}
	}

	return DeduplicateInputs(inputs), nil
}
