package installments

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Abonos"

var exportHeaders = []string{
	"Fecha", "Cliente", "Documento", "Proyecto", "Vivienda", "Fuente de pago",
	"Método", "Referencia", "Monto", "Estado negociación", "Anulado",
}

// WriteXLSX renders rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []LedgerRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		reference := ""
		if r.Reference != nil {
			reference = *r.Reference
		}
		annulled := "No"
		if r.Annulled() {
			annulled = "Sí"
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.PaidOn.Format("2006-01-02"),
			r.ClientName(),
			r.ClientDocument,
			r.ProjectName,
			fmt.Sprintf("Manzana %s Casa %s", r.Block, r.UnitNumber),
			r.SourceKind,
			string(r.Method),
			reference,
			r.Amount.InexactFloat64(),
			r.NegotiationState,
			annulled,
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}
