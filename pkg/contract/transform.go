package contract

import "image"

// TransformInfo: 单次变换的可观测参数（写入日志/报告）。
type TransformInfo struct {
	Angle float64
}

// Transform: 对已解码图像做确定性几何变换。
// 同一 seed 必须得到同一结果；不得修改输入图像。
type Transform interface {
	Apply(src image.Image, seed uint64) (image.Image, TransformInfo, error)
}
