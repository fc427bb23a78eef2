// Package augment 对选中的候选图片做小角度旋转增强，其余原样保留或复制。
package augment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"formulaprep/internal/diag"
	"formulaprep/pkg/contract"
	"formulaprep/plugins/codec/imagefile"
	"formulaprep/plugins/writer/filesystem"
)

// BackupSuffix: 原地增强前的备份后缀，不在扩展名允许列表内，因此不会被再次索引为候选。
const BackupSuffix = ".bak"

// Request: 一次执行的输入。
type Request struct {
	Candidates []contract.ImageEntry
	Selected   contract.IndexSet
	// SrcDir: 候选所在目录。
	SrcDir string
	// DestDir: 输出目录；为空或与 SrcDir 相同为原地模式。
	DestDir string
	// Backup: 原地模式下，覆盖前写 <name>.bak（已存在则不覆盖）。
	Backup bool
	// ItemSeed: 候选下标 → 角度种子；nil 时为下标本身。
	ItemSeed func(index int) uint64
}

// Report: 执行报告。
type Report struct {
	Candidates int                   `json:"candidates" yaml:"candidates"`
	Selected   int                   `json:"selected" yaml:"selected"`
	InPlace    bool                  `json:"in_place" yaml:"in_place"`
	Output     string                `json:"output" yaml:"output"`
	Backups    int                   `json:"backups" yaml:"backups"`
	Totals     contract.Totals       `json:"totals" yaml:"totals"`
	Items      []contract.ItemResult `json:"items,omitempty" yaml:"items,omitempty"`
}

// String 返回单行摘要。
func (r Report) String() string {
	mode := "copy"
	if r.InPlace {
		mode = "in-place"
	}
	return fmt.Sprintf("augment[%s]: candidates=%d selected=%d processed=%d augmented=%d failed=%d skipped=%d backups=%d -> %s",
		mode, r.Candidates, r.Selected, r.Totals.Processed, r.Totals.Augmented, r.Totals.Failed, r.Totals.Skipped, r.Backups, r.Output)
}

// Executor 逐项处理候选：选中项解码、变换、按原扩展名编码写出；失败回退为逐字节复制。
// 单线程顺序处理，结果顺序与候选顺序一致。
type Executor struct {
	transform contract.Transform
	codec     *imagefile.Codec
	logger    *diag.Logger
}

// NewExecutor 创建执行器。logger 可为 nil。
func NewExecutor(t contract.Transform, codec *imagefile.Codec, logger *diag.Logger) *Executor {
	return &Executor{transform: t, codec: codec, logger: logger}
}

// Execute 执行增强。
// 阶段级错误：目录配置错误（ErrConfig）、选中下标越界（ErrInvalidInput）、写出失败（ErrWrite）、取消。
// 单项读取/解码/变换失败只计入 Failed，不返回错误。
func (x *Executor) Execute(ctx context.Context, req Request) (Report, error) {
	n := len(req.Candidates)
	rep := Report{Candidates: n, Selected: len(req.Selected)}
	for i := range req.Selected {
		if i < 0 || i >= n {
			return rep, fmt.Errorf("%w: selected index %d out of range [0,%d)", contract.ErrInvalidInput, i, n)
		}
	}
	src := filepath.Clean(req.SrcDir)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return rep, fmt.Errorf("%w: image directory not found: %s", contract.ErrConfig, req.SrcDir)
	}
	dest := strings.TrimSpace(req.DestDir)
	if dest == "" {
		dest = src
	}
	dest = filepath.Clean(dest)
	rep.Output = dest
	rep.InPlace = sameDir(src, dest)
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		return rep, fmt.Errorf("%w: output is not a directory: %s", contract.ErrConfig, dest)
	}
	w, err := filesystem.New(&filesystem.Options{OutputDir: dest})
	if err != nil {
		return rep, err
	}
	seedOf := req.ItemSeed
	if seedOf == nil {
		seedOf = func(i int) uint64 { return uint64(i) }
	}

	tm := x.logger.StartWithKV("augment", "execute", src, map[string]string{
		"output":     dest,
		"candidates": strconv.Itoa(n),
		"selected":   strconv.Itoa(len(req.Selected)),
	})
	term := diag.GetTerminal()
	term.StageStart("augment", n)
	t0 := time.Now()

	rep.Items = make([]contract.ItemResult, 0, n)
	for i, c := range req.Candidates {
		if err := ctx.Err(); err != nil {
			x.failStage(tm, err, &rep, t0)
			return rep, err
		}
		res, backedUp, err := x.item(ctx, w, src, rep.InPlace, i, c, req.Selected.Has(i), req.Backup, seedOf(i))
		if backedUp {
			rep.Backups++
		}
		rep.Items = append(rep.Items, res)
		rep.Totals.Add(res.Outcome)
		if err != nil {
			x.failStage(tm, err, &rep, t0)
			return rep, err
		}
		term.Progress(i+1, rep.Totals.Failed, c.Name)
	}
	term.StageFinish(true, time.Since(t0), fmt.Sprintf("augmented=%d failed=%d", rep.Totals.Augmented, rep.Totals.Failed))
	tm.FinishKV("execute", int64(rep.Totals.Processed), map[string]string{
		"augmented": strconv.Itoa(rep.Totals.Augmented),
		"failed":    strconv.Itoa(rep.Totals.Failed),
		"skipped":   strconv.Itoa(rep.Totals.Skipped),
	})
	diag.IncOp("augment", "finish", "success")
	return rep, nil
}

// item 处理单个候选。返回的 error 只表示阶段级失败（写出/取消）；
// 源文件读不到只记该项 Failed。
func (x *Executor) item(ctx context.Context, w *filesystem.FS, src string, inPlace bool, i int, c contract.ImageEntry, selected, backup bool, seed uint64) (contract.ItemResult, bool, error) {
	res := contract.ItemResult{Index: i, Name: c.Name, Outcome: contract.CopiedVerbatim}
	srcPath := filepath.Join(src, c.Name)
	id := contract.ArtifactID(c.Name)

	if !selected {
		if !inPlace {
			if err := w.CopyFile(ctx, id, srcPath); err != nil {
				if stageErr(err) {
					return res, false, err
				}
				x.sourceFailed(&res, srcPath, err)
				return res, false, nil
			}
		}
		x.logger.Debug("augment", "copied", c.Name, nil)
		return res, false, nil
	}

	data, perm, err := readSource(srcPath)
	if err != nil {
		x.sourceFailed(&res, srcPath, err)
		return res, false, nil
	}
	out, angle, perr := x.render(data, c.Name, seed)
	if perr != nil {
		res.Outcome = contract.Failed
		res.Err = perr.Error()
		x.logger.Warn("augment", "item failed, copied verbatim", c.Name, map[string]string{"error": perr.Error()})
		diag.IncError("augment", diag.Classify(perr))
		if !inPlace {
			if err := w.WriteMode(ctx, id, bytes.NewReader(data), perm); err != nil {
				return res, false, err
			}
		}
		return res, false, nil
	}

	backedUp := false
	if inPlace && backup {
		backedUp, err = w.WriteIfAbsent(ctx, contract.ArtifactID(c.Name+BackupSuffix), bytes.NewReader(data))
		if err != nil {
			return res, false, err
		}
	}
	if err := w.WriteMode(ctx, id, bytes.NewReader(out), perm); err != nil {
		return res, backedUp, err
	}
	res.Outcome = contract.Augmented
	res.Angle = angle
	x.logger.Debug("augment", "augmented", c.Name, map[string]string{"angle": strconv.FormatFloat(angle, 'f', 3, 64)})
	return res, backedUp, nil
}

// sourceFailed 记录源文件读取失败；目标不写出任何内容。
func (x *Executor) sourceFailed(res *contract.ItemResult, path string, err error) {
	ferr := fmt.Errorf("%w: read %s: %v", contract.ErrItemProcessing, path, err)
	res.Outcome = contract.Failed
	res.Err = ferr.Error()
	x.logger.Warn("augment", "source unreadable", res.Name, map[string]string{"error": err.Error()})
	diag.IncError("augment", diag.Classify(ferr))
}

// readSource 读取源文件全部字节与权限位；目录视为读取失败。
func readSource(path string) ([]byte, os.FileMode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if st.IsDir() {
		return nil, 0, &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	return data, st.Mode().Perm(), nil
}

// render 解码、变换、编码；任一步失败都归为单项处理错误。
func (x *Executor) render(data []byte, name string, seed uint64) ([]byte, float64, error) {
	img, err := x.codec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	rot, info, err := x.transform.Apply(img, seed)
	if err != nil {
		if !errors.Is(err, contract.ErrItemProcessing) {
			err = fmt.Errorf("%w: %v", contract.ErrItemProcessing, err)
		}
		return nil, 0, err
	}
	var buf bytes.Buffer
	if err := x.codec.Encode(&buf, name, rot); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), info.Angle, nil
}

func (x *Executor) failStage(tm *diag.Timer, err error, rep *Report, t0 time.Time) {
	code := diag.Classify(err)
	x.logger.Error("augment", code, "execute failed: "+err.Error(), tm.Since())
	diag.IncOp("augment", "error", "error")
	diag.IncError("augment", code)
	diag.GetTerminal().StageFinish(false, time.Since(t0), rep.Totals.String())
}

// stageErr 报告 err 是否属于阶段级失败：写出、路径越界或取消。
func stageErr(err error) bool {
	return errors.Is(err, contract.ErrWrite) || errors.Is(err, contract.ErrPathInvalid) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sameDir(a, b string) bool {
	if a == b {
		return true
	}
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}
