// Package excel exporta el registro de movimientos a XLSX para los reportes
// de cierre de la planta.
package excel

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

const sheetName = "Movimientos"

var headers = []string{
	"Fecha", "Tipo", "Producto", "Ubicación", "Lote", "Cantidad", "Motivo", "Trabajo", "Usuario",
}

// MovementsExporter genera archivos XLSX del registro de movimientos.
type MovementsExporter struct{}

// NewMovementsExporter construye el exportador.
func NewMovementsExporter() *MovementsExporter { return &MovementsExporter{} }

// Export escribe los movimientos a un libro XLSX, más recientes primero
// (mismo orden del listado).
func (e *MovementsExporter) Export(movements []*entity.StockMovement) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName("Sheet1", sheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBDD"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("excel: estilo de cabecera: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("excel: cabecera %s: %w", h, err)
		}
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, m := range movements {
		rowNum := i + 2
		values := []any{
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.Type,
			m.ProductID,
			m.LocationID,
			m.LotID,
			m.Quantity.String(),
			m.Reason,
			m.JobID,
			m.CreatedBy,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, rowNum)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("excel: fila %d: %w", rowNum, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "C", "E", 24)
	_ = f.SetColWidth(sheetName, "G", "H", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("excel: escribir libro: %w", err)
	}
	return buf, nil
}
