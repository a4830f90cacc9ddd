package service

import (
	"strings"
	"testing"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
)

func exportView(canSeeSensitive bool) *RequestView {
	return &RequestView{
		Header:          entity.RequestHeader{ID: 42, ProjectName: "테스트"},
		CanSeeSensitive: canSeeSensitive,
		Lines: []entity.RequestLine{
			{ID: 1, EstimateItemID: int64Ptr(5), NameSnapshot: "프레임", UnitSnapshot: "EA",
				QtyRequested: 4, QtyUsed: float64Ptr(2), QtyOnHand: float64Ptr(10), PrepStatus: entity.PrepStatusPreparing},
			{ID: 2, NameSnapshot: "기타", UnitSnapshot: "EA", QtyRequested: 1, PrepStatus: entity.PrepStatusReady},
		},
	}
}

func TestExportXLSX(t *testing.T) {
	svc := &RequestService{}
	f, filename, err := svc.ExportXLSX(exportView(true))
	if err != nil {
		t.Fatalf("ExportXLSX failed: %v", err)
	}
	defer f.Close()

	if !strings.HasPrefix(filename, "MaterialRequest_") || !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("filename = %q, want MaterialRequest_*.xlsx", filename)
	}

	sheet := "自材请求"
	if got, _ := f.GetCellValue(sheet, "A1"); got != "来源" {
		t.Errorf("A1 = %q, want header row", got)
	}
	// 见积组先于手动组
	if got, _ := f.GetCellValue(sheet, "A2"); got != "见积" {
		t.Errorf("A2 = %q, want 见积", got)
	}
	if got, _ := f.GetCellValue(sheet, "B2"); got != "프레임" {
		t.Errorf("B2 = %q, want name snapshot", got)
	}
	// 敏感列：使用量与余量
	if got, _ := f.GetCellValue(sheet, "F2"); got != "2" {
		t.Errorf("F2 = %q, want effective used qty 2", got)
	}
	if got, _ := f.GetCellValue(sheet, "H2"); got != "8" {
		t.Errorf("H2 = %q, want stock delta 8", got)
	}
	// 汇总行
	if got, _ := f.GetCellValue(sheet, "A4"); got != "汇总" {
		t.Errorf("A4 = %q, want summary row", got)
	}
}

func TestExportXLSXHidesSensitiveColumns(t *testing.T) {
	svc := &RequestService{}
	f, _, err := svc.ExportXLSX(exportView(false))
	if err != nil {
		t.Fatalf("ExportXLSX failed: %v", err)
	}
	defer f.Close()

	sheet := "自材请求"
	if got, _ := f.GetCellValue(sheet, "F2"); got != "" {
		t.Errorf("F2 = %q, want sensitive column empty for non-privileged view", got)
	}
	if got, _ := f.GetCellValue(sheet, "H2"); got != "" {
		t.Errorf("H2 = %q, want stock delta hidden", got)
	}
}

func TestExportFilenameFallsBackToID(t *testing.T) {
	svc := &RequestService{}
	v := exportView(true)
	v.Header.ProjectName = ""
	v.Header.Memo = ""

	_, filename, err := svc.ExportXLSX(v)
	if err != nil {
		t.Fatalf("ExportXLSX failed: %v", err)
	}
	if filename != "MaterialRequest_42.xlsx" {
		t.Errorf("filename = %q, want id fallback", filename)
	}
}
