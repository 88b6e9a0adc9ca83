package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/John-Robertt/jusox/internal/domain"
)

// Kind 区分注册表调用失败的三种方式。
type Kind string

const (
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindAPI       Kind = "api"
)

// Error 是注册表调用的可追溯错误。
// 上层据此把失败归类为 transport_error / timeout / api_error 并写入报告。
type Error struct {
	Kind    Kind
	Op      string // "forward" 或 "detail"
	Code    string // 仅 KindAPI：注册表 errorCode
	Message string // 仅 KindAPI：注册表 errorMessage
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAPI:
		return fmt.Sprintf("op=%s api errorCode=%s: %s", e.Op, e.Code, e.Message)
	case KindTimeout:
		return fmt.Sprintf("op=%s timeout: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("op=%s transport: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// APIError 构造注册表业务错误。
func APIError(op, code, message string) *Error {
	return &Error{Kind: KindAPI, Op: op, Code: code, Message: message}
}

// Classify 把底层错误包装为 *Error；已是 *Error 的原样返回。
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf 返回 err 的分类；未包装的错误按 Classify 规则推断。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindTransport
}

// ErrorCode 把错误映射为报告中的 error_code。
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrCodeCanceled
	}
	switch KindOf(err) {
	case KindAPI:
		return domain.ErrCodeAPI
	case KindTimeout:
		return domain.ErrCodeTimeout
	default:
		return domain.ErrCodeTransport
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// HTTPStatusError 表示注册表返回了非 2xx 的 HTTP 状态码（归为 transport）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}
