package service

import (
	"fmt"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
)

// BuildLineView 单行派生视图：只读计算，不改动原行
func BuildLineView(line entity.RequestLine) entity.LineView {
	view := entity.LineView{
		RequestLine: line,
		Provenance:  Classify(&line),
	}

	// 有效使用量：qty_used缺省、或为0但请求量>0时，展示/编辑默认回落到请求量
	// 存储值不动，0只在用户显式提交后才有意义
	switch {
	case line.QtyUsed == nil:
		view.EffectiveUsedQty = line.QtyRequested
	case *line.QtyUsed == 0 && line.QtyRequested > 0:
		view.EffectiveUsedQty = line.QtyRequested
	default:
		view.EffectiveUsedQty = *line.QtyUsed
	}

	// 库存余量只在qty_on_hand已知时计算，未知保持null（绝不默认0）
	if line.QtyOnHand != nil {
		delta := *line.QtyOnHand - view.EffectiveUsedQty
		view.StockDelta = &delta
	}

	return view
}

// Aggregate 按来源三分组，组内保持输入相对顺序（稳定划分，非排序）
// 满足 |estimate|+|catalog|+|manual| == |input|
func Aggregate(lines []entity.RequestLine) entity.GroupedLines {
	var grouped entity.GroupedLines
	for _, line := range lines {
		view := BuildLineView(line)
		switch view.Provenance {
		case entity.ProvenanceEstimate:
			grouped.Estimate = append(grouped.Estimate, view)
		case entity.ProvenanceCatalog:
			grouped.Catalog = append(grouped.Catalog, view)
		default:
			grouped.Manual = append(grouped.Manual, view)
		}
	}
	return grouped
}

// DeduplicateInputs 见积抽取时的行项去重：组合键(product_id, name, spec, unit, provenance)
// 仅在抽取入口调用一次，常规聚合不去重；重复项保留首次出现
func DeduplicateInputs(inputs []entity.LineInput) []entity.LineInput {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]entity.LineInput, 0, len(inputs))
	for _, in := range inputs {
		line := entity.RequestLine{
			ProductID:      in.ProductID,
			EstimateItemID: in.EstimateItemID,
			Source:         in.Source,
		}
		var pid int64
		if in.ProductID != nil {
			pid = *in.ProductID
		}
		key := fmt.Sprintf("%d|%s|%s|%s|%s", pid, in.NameSnapshot, in.SpecSnapshot, in.UnitSnapshot, Classify(&line))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, in)
	}
	return out
}
