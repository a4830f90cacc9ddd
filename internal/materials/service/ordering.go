package service

import (
	"sort"
	"time"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
)

// MergePins 本地置顶集合与上游is_pinned的加法合并
// 上游声明true的行不会被本地集合覆盖为false，本地集合只会追加置顶
func MergePins(headers []entity.RequestHeader, pinned map[int64]struct{}) {
	for i := range headers {
		if _, ok := pinned[headers[i].ID]; ok {
			headers[i].IsPinned = true
		}
	}
}

// OrderHeaders 请求单列表的确定性全序：
// 置顶优先 → created_at降序（缺失/不可解析按纪元零处理） → id降序兜底
func OrderHeaders(headers []entity.RequestHeader) {
	sort.SliceStable(headers, func(i, j int) bool {
		a, b := &headers[i], &headers[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		at, bt := sortTime(a.CreatedAt), sortTime(b.CreatedAt)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID > b.ID
	})
}

// sortTime 零值时间归一到纪元零，保证缺失时间排到最后
func sortTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
