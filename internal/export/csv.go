// Package export 把 RunReport 写成表格文件。
package export

import (
	"bufio"
	"io"
	"strings"

	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/infra/fsx"
)

// Header 是导出 CSV 的固定表头。
var Header = []string{"index", "input", "matched_addr", "zipNo", "choice", "note"}

const bom = "\ufeff"

// WriteCSV 以 UTF-8 BOM 开头、CRLF 换行、每个字段都加引号的格式写出 rows。
//
// encoding/csv 只在必要时加引号，这里需要“全部加引号”，因此手写转义。
func WriteCSV(w io.Writer, rows []domain.Row) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(bom); err != nil {
		return err
	}
	if err := writeRecord(bw, Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRecord(bw, row.Record()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCSVFile 原子写出 CSV：要么得到完整的新文件，要么保留旧文件。
func WriteCSVFile(path string, rows []domain.Row) error {
	return fsx.WritePathAtomic(path, func(w io.Writer) error {
		return WriteCSV(w, rows)
	})
}

func writeRecord(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
