// Package input 把各种输入源读成“一行一条地址”。
//
// 支持的格式（按扩展名判断，大小写不敏感）：
// - .txt 及其他：按行读取
// - .csv：取每条记录的第一列；首行若是 input/address 表头则跳过
// - .html/.htm：依次尝试 table 首列、textarea、li、pre
// - "-" 或空路径：stdin（按行读取）
//
// 所有格式都会去掉首尾空白与 UTF-8 BOM，并丢弃空行。
package input

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Format 表示输入文件格式。
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

const bom = "\ufeff"

// 单行上限；地址不会这么长，超出说明喂错了文件。
const maxLineBytes = 1 << 20

// Stdin 的路径占位。
const Stdin = "-"

// Error 是读取阶段的结构化错误。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("读取输入 %q 失败：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DetectFormat 按扩展名推断格式；未知扩展名按纯文本处理。
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatText
	}
}

// ReadFile 读取 path 指向的输入；path 为 "-" 或空串时读取 stdin。
func ReadFile(path string, stdin io.Reader) ([]string, error) {
	if path == "" || path == Stdin {
		lines, err := Read(stdin, FormatText)
		if err != nil {
			return nil, &Error{Path: Stdin, Err: err}
		}
		return lines, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer f.Close()

	lines, err := Read(f, DetectFormat(path))
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return lines, nil
}

// Read 按指定格式解析 r。
func Read(r io.Reader, format Format) ([]string, error) {
	if r == nil {
		return nil, errors.New("reader 为空")
	}
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatHTML:
		return readHTML(r)
	default:
		return readText(r)
	}
}

func readText(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []string
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, bom)
			first = false
		}
		out = appendLine(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func readCSV(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, []byte(bom))

	cr := csv.NewReader(bytes.NewReader(b))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var out []string
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		if first {
			first = false
			if isHeader(rec[0]) {
				continue
			}
		}
		out = appendLine(out, rec[0])
	}
	return out, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "input", "address", "addr", "query":
		return true
	}
	return false
}

// readHTML 按优先级选择第一种有内容的结构：
// table 每行首个 td > textarea 的每一行 > li > pre 的每一行。
func readHTML(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var out []string
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		td := tr.Find("td").First()
		if td.Length() == 0 {
			return
		}
		out = appendLine(out, td.Text())
	})
	if len(out) > 0 {
		return out, nil
	}

	doc.Find("textarea").Each(func(_ int, s *goquery.Selection) {
		out = appendMultiline(out, s.Text())
	})
	if len(out) > 0 {
		return out, nil
	}

	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		out = appendLine(out, s.Text())
	})
	if len(out) > 0 {
		return out, nil
	}

	doc.Find("pre").Each(func(_ int, s *goquery.Selection) {
		out = appendMultiline(out, s.Text())
	})
	return out, nil
}

func appendMultiline(out []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		out = appendLine(out, line)
	}
	return out
}

// appendLine 折叠空白后追加；空行直接丢弃。
func appendLine(out []string, line string) []string {
	line = strings.Join(strings.Fields(strings.TrimPrefix(line, bom)), " ")
	if line == "" {
		return out
	}
	return append(out, line)
}
