package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

const exportPageSize = 500

var (
	exportFormat string
	exportOutput string
	exportLimit  int
)

var exportHeader = []string{
	"external_key", "name", "title", "organization", "location", "email", "phone",
	"industry", "segment", "priority", "verified", "created_at", "updated_at",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records to an xlsx or json file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		if exportFormat != "xlsx" && exportFormat != "json" {
			return eris.Errorf("unknown export format %q (want xlsx or json)", exportFormat)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		records, err := loadRecords(ctx, st, exportLimit)
		if err != nil {
			return err
		}

		output := exportOutput
		if output == "" {
			output = "records." + exportFormat
		}
		if exportFormat == "xlsx" {
			err = writeXLSX(output, records)
		} else {
			err = writeJSONFile(output, records)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("format", exportFormat),
			zap.String("output", output),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

// loadRecords pages through the store newest first. limit <= 0 exports
// everything.
func loadRecords(ctx context.Context, st store.Store, limit int) ([]model.Record, error) {
	var out []model.Record
	for offset := 0; ; offset += exportPageSize {
		size := exportPageSize
		if limit > 0 {
			size = min(size, limit-len(out))
			if size <= 0 {
				break
			}
		}
		page, err := st.SelectPage(ctx, store.RecordFilter{}, store.OrderNewestFirst, size, offset)
		if err != nil {
			return nil, eris.Wrap(err, "export: select records")
		}
		out = append(out, page...)
		if len(page) < size {
			break
		}
	}
	return out, nil
}

func recordRow(r model.Record) []string {
	return []string{
		r.ExternalKey, r.Name, r.Title, r.Organization, r.Location,
		model.Deref(r.Email), model.Deref(r.Phone),
		r.Industry, r.Segment, string(r.Priority), strconv.FormatBool(r.Verified),
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeXLSX(path string, records []model.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Records")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, exportHeader)
	for _, r := range records {
		addRow(sheet, recordRow(r))
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

func writeJSONFile(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close() //nolint:errcheck
	return encodeRecords(f, records)
}

func encodeRecords(w io.Writer, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format: xlsx or json")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output path (default records.<format>)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum records to export (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
