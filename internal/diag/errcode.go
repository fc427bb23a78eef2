package diag

import (
	"context"
	"errors"
	"os"

	"formulaprep/pkg/contract"
)

// Code 是最小错误分类代码，用于日志与计数汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeConfig    Code = "config"
	CodeDecode    Code = "decode"
	CodeItem      Code = "item"
	CodeWrite     Code = "write"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。只依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrConfig):
		return CodeConfig
	case errors.Is(err, contract.ErrWrite):
		return CodeWrite
	case errors.Is(err, contract.ErrRecordDecode):
		return CodeDecode
	case errors.Is(err, contract.ErrItemProcessing):
		return CodeItem
	case errors.Is(err, contract.ErrInvalidInput),
		errors.Is(err, contract.ErrPathInvalid),
		errors.Is(err, contract.ErrUnknownStrategy):
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
