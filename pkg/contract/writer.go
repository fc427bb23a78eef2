package contract

import (
	"context"
	"io"
)

// ArtifactID: 写出目标的相对标识（文件名或相对路径）。
type ArtifactID string

// Writer: 将字节流持久化到目标介质（文件系统等）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
