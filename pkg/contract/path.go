package contract

import (
	"path"
	"strings"
)

// NormalizeImageRef 规范化清单中的图片路径：统一正斜杠并清理多余片段。
// 清单可能来自 Windows 环境（反斜杠分隔），提取编号前需先规范化。
func NormalizeImageRef(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// RefBase 返回图片路径的文件名部分（跨平台分隔符）。
func RefBase(p string) string {
	n := NormalizeImageRef(p)
	if n == "" || n == "." {
		return ""
	}
	return path.Base(n)
}
