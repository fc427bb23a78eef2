package contract

import "errors"

// 最小错误分类（阶段级失败用 errors.Is 判定；逐行/逐项失败只计数不上抛）。
var (
	// ErrConfig: 配置/输入缺失或类型不符（目录不存在、文件是目录等）。阶段终止，且在任何写入之前检出。
	ErrConfig = errors.New("configuration error")
	// ErrRecordDecode: 清单行结构解码失败。逐行恢复，计入 removed。
	ErrRecordDecode = errors.New("record decode error")
	// ErrItemProcessing: 单张图片解码/变换失败。逐项恢复，回退为逐字节复制。
	ErrItemProcessing = errors.New("item processing error")
	// ErrWrite: 输出无法持久化。整个阶段失败。
	ErrWrite = errors.New("write error")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 参数不满足前置条件（负数数量、未知模式等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownStrategy: 注册表中不存在的选择策略/变换名。
	ErrUnknownStrategy = errors.New("unknown strategy")
)
