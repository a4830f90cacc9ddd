package service

import (
	"strings"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
)

// 来源提示串的同义词集合
// 上游历史版本的source取值不统一，外键存在性是最可靠的信号，文本提示只作兜底
var (
	estimateSourceHints = []string{"ESTIMATE", "QUOTE", "FROM_ESTIMATE", "FROM_QUOTE"}
	catalogSourceHints  = []string{"PRODUCT", "UPLINK", "MATERIAL", "STOCK", "ITEM", "GOODS"}
)

// Classify 行项来源分类：纯函数、全函数（任何输入都有结果）
// 规则按序匹配，先中先赢；顺序不可调整：
//  1. estimate_item_id与product_id均无效 → MANUAL
//  2. estimate_item_id有效 → ESTIMATE（见积关联优先于顺带出现的product_id）
//  3. source含见积同义词（或整串为EST） → ESTIMATE
//  4. product_id有效 → CATALOG
//  5. source含产品目录同义词 → CATALOG
//  6. 兜底 → MANUAL
func Classify(line *entity.RequestLine) entity.Provenance {
	hasEstimate := positiveID(line.EstimateItemID)
	hasProduct := positiveID(line.ProductID)
	src := strings.ToUpper(strings.TrimSpace(line.Source))

	switch {
	case !hasEstimate && !hasProduct:
		return entity.ProvenanceManual
	case hasEstimate:
		return entity.ProvenanceEstimate
	case hasEstimateHint(src):
		return entity.ProvenanceEstimate
	case hasProduct:
		return entity.ProvenanceCatalog
	case containsAny(src, catalogSourceHints):
		return entity.ProvenanceCatalog
	default:
		return entity.ProvenanceManual
	}
}

// hasEstimateHint 见积提示匹配：同义词取子串匹配，EST因过短只做整串匹配
// （子串匹配EST会误中REQUEST之类）
func hasEstimateHint(upperSource string) bool {
	return containsAny(upperSource, estimateSourceHints) || upperSource == "EST"
}

func positiveID(id *int64) bool {
	return id != nil && *id > 0
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
