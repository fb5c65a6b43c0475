// Package pdf implementa la hoja de picking de un trabajo de despacho:
// el documento que el bodeguero lleva en mano con los lotes confirmados
// (producto, lote, fecha de producción y cantidad a tomar).
package pdf

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

var (
	colorPrimary = &props.Color{Red: 27, Green: 94, Blue: 32}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// PickingSheetGenerator genera hojas de picking con Maroto v2.
type PickingSheetGenerator struct{}

// NewPickingSheetGenerator construye el generador.
func NewPickingSheetGenerator() *PickingSheetGenerator { return &PickingSheetGenerator{} }

// Generate produce el PDF de la hoja de picking. lotsByID resuelve la fecha
// de producción de cada lote asignado; un lote ausente se imprime solo con
// su ID.
func (g *PickingSheetGenerator) Generate(job *entity.FulfillmentJob, lotsByID map[string]*entity.Lot) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Hoja de Picking", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(job))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(tableHeaderRow())
	for _, alloc := range job.Allocations {
		for _, e := range alloc.Entries {
			m.AddRows(entryRow(alloc.ProductID, e, lotsByID[e.LotID]))
		}
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRow(job))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar hoja de picking: %w", err)
	}
	return doc.GetBytes(), nil
}

func headerRow(job *entity.FulfillmentJob) core.Row {
	ref := job.Reference
	if ref == "" {
		ref = job.ID
	}
	claimed := ""
	if job.ClaimedBy != nil {
		claimed = *job.ClaimedBy
	}
	return row.New(16).Add(
		col.New(7).Add(
			text.New("Hoja de Picking", props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("Pedido: "+ref, props.Text{Size: 9, Top: 9, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("Ubicación: "+job.LocationID, props.Text{Size: 9, Top: 2, Align: align.Right}),
			text.New("Preparador: "+claimed, props.Text{Size: 9, Top: 9, Align: align.Right}),
		),
	)
}

func tableHeaderRow() core.Row {
	header := props.Text{Style: fontstyle.Bold, Size: 9, Color: colorPrimary, Top: 1}
	return row.New(8).Add(
		col.New(4).Add(text.New("Producto", header)),
		col.New(4).Add(text.New("Lote", header)),
		col.New(2).Add(text.New("Producción", header)),
		col.New(2).Add(text.New("Cantidad", props.Text{
			Style: fontstyle.Bold, Size: 9, Color: colorPrimary, Top: 1, Align: align.Right,
		})),
	)
}

func entryRow(productID string, e entity.AllocationEntry, lot *entity.Lot) core.Row {
	producedOn := "—"
	if lot != nil {
		producedOn = lot.ProducedOn.Format("2006-01-02")
	}
	cell := props.Text{Size: 9, Top: 1}
	return row.New(7).Add(
		col.New(4).Add(text.New(productID, cell)),
		col.New(4).Add(text.New(e.LotID, cell)),
		col.New(2).Add(text.New(producedOn, cell)),
		col.New(2).Add(text.New(e.Quantity.String(), props.Text{Size: 9, Top: 1, Align: align.Right})),
	)
}

func footerRow(job *entity.FulfillmentJob) core.Row {
	return row.New(8).Add(
		col.New(12).Add(
			text.New(fmt.Sprintf("Trabajo %s · estado %s · generado %s",
				job.ID, job.State, job.UpdatedAt.Format("2006-01-02 15:04")),
				props.Text{Size: 8, Color: colorGray, Top: 2}),
		),
	)
}
