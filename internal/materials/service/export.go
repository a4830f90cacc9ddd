package service

import (
	"fmt"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{
	"来源", "名称", "规格", "单位", "请求量", "使用量", "库存", "余量", "准备状态", "备注",
}

var provenanceLabels = map[entity.Provenance]string{
	entity.ProvenanceEstimate: "见积",
	entity.ProvenanceCatalog:  "产品",
	entity.ProvenanceManual:   "手动",
}

// ExportXLSX 请求单详情导出为xlsx：按来源三组展开，派生字段随行输出
func (s *RequestService) ExportXLSX(v *RequestView) (*excelize.File, string, error) {
	f := excelize.NewFile()
	sheet := "自材请求"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range exportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	grouped := v.Grouped()
	row := 1
	for _, views := range [][]entity.LineView{grouped.Estimate, grouped.Catalog, grouped.Manual} {
		for _, lv := range views {
			row++
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), provenanceLabels[lv.Provenance])
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), lv.NameSnapshot)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), lv.SpecSnapshot)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), lv.UnitSnapshot)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), lv.QtyRequested)
			if v.CanSeeSensitive {
				f.SetCellValue(sheet, fmt.Sprintf("F%d", row), lv.EffectiveUsedQty)
				if lv.QtyOnHand != nil {
					f.SetCellValue(sheet, fmt.Sprintf("G%d", row), *lv.QtyOnHand)
				}
				if lv.StockDelta != nil {
					f.SetCellValue(sheet, fmt.Sprintf("H%d", row), *lv.StockDelta)
				}
			}
			f.SetCellValue(sheet, fmt.Sprintf("I%d", row), lv.PrepStatus)
			f.SetCellValue(sheet, fmt.Sprintf("J%d", row), lv.Note)
		}
	}

	// 底部汇总行
	summaryRow := row + 1
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow),
		fmt.Sprintf("见积 %d / 产品 %d / 手动 %d", len(grouped.Estimate), len(grouped.Catalog), len(grouped.Manual)))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("J%d", summaryRow), summaryStyle)

	colWidths := []float64{8, 24, 20, 6, 10, 10, 10, 10, 12, 24}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	name := v.Header.DisplayName()
	if name == "" {
		name = fmt.Sprintf("%d", v.Header.ID)
	}
	filename := fmt.Sprintf("MaterialRequest_%s.xlsx", name)
	return f, filename, nil
}
