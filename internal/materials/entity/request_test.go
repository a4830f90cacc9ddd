package entity

import "testing"

func TestCanTransitionPrep(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{PrepStatusPreparing, PrepStatusChanged, true},
		{PrepStatusPreparing, PrepStatusReady, true},
		{PrepStatusChanged, PrepStatusReady, true},
		{PrepStatusChanged, PrepStatusPreparing, false},
		// READY为终态：任何离开READY的迁移都不允许
		{PrepStatusReady, PrepStatusPreparing, false},
		{PrepStatusReady, PrepStatusChanged, false},
		// 同状态提交视为无操作放行
		{PrepStatusReady, PrepStatusReady, true},
		{PrepStatusPreparing, PrepStatusPreparing, true},
		// 未知状态
		{PrepStatusPreparing, "SHIPPED", false},
		{"UNKNOWN", PrepStatusReady, false},
	}

	for _, tt := range tests {
		if got := CanTransitionPrep(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionPrep(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestGroupedLinesTotal(t *testing.T) {
	g := GroupedLines{
		Estimate: make([]LineView, 2),
		Catalog:  make([]LineView, 3),
		Manual:   make([]LineView, 1),
	}
	if g.Total() != 6 {
		t.Errorf("Total() = %d, want 6", g.Total())
	}
}
