package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"formulaprep/pkg/contract"
)

// Options: 文件系统写出选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。清单保存时为清单所在目录，增强输出时为图片目录。
	OutputDir string `koanf:"output_dir"`
	// Atomic: 同目录临时文件 + rename。默认 true；显式 false 为原地截断写。
	Atomic *bool `koanf:"atomic"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `koanf:"perm_file"`
	PermDir  os.FileMode `koanf:"perm_dir"`
	// BufSize: 写缓冲区大小；<=0 使用 64KiB。
	BufSize int `koanf:"buf_size"`
}

// FS 将产物写到 OutputDir 下的相对路径。
// 失败时目标文件保持写入前的状态（原子模式），错误包装 ErrWrite。
type FS struct {
	root    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: writer output_dir required", contract.ErrConfig)
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: opts.OutputDir, atomic: atomic, permF: pf, permD: pd, bufSize: bsz}, nil
}

var _ contract.Writer = (*FS)(nil)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

// Path 返回 id 对应的目标路径；越界时返回 ErrPathInvalid。
func (w *FS) Path(id contract.ArtifactID) (string, error) { return w.mapPath(id) }

// Write 将 r 的全部字节写入 id 对应的目标，已存在则替换。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	return w.WriteMode(ctx, id, r, w.permF)
}

// WriteMode 同 Write，目标文件权限为 perm（0 为默认）。原地替换时用于保留原文件权限。
func (w *FS) WriteMode(ctx context.Context, id contract.ArtifactID, r io.Reader, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if perm == 0 {
		perm = w.permF
	}
	dest, err := w.prepare(id)
	if err != nil {
		return err
	}
	if w.atomic {
		err = w.writeAtomic(ctx, dest, r, perm)
	} else {
		err = w.writeOverwrite(ctx, dest, r, perm)
	}
	return wrapWrite(dest, err)
}

// WriteIfAbsent 仅在目标不存在时写入（O_EXCL），已存在返回 (false, nil)。
// 用于备份：重复运行不会覆盖首份备份。
func (w *FS) WriteIfAbsent(ctx context.Context, id contract.ArtifactID, r io.Reader) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dest, err := w.prepare(id)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, w.permF)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, wrapWrite(dest, err)
	}
	bw := bufio.NewWriterSize(f, w.bufSize)
	_, err = io.Copy(bw, readerWithCtx(ctx, r))
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// 半截备份比没有备份更糟
		_ = os.Remove(dest)
		return false, wrapWrite(dest, err)
	}
	return true, nil
}

// CopyFile 逐字节复制 src 到 id 对应的目标，保留权限并尽量保留修改时间。
// src 与目标为同一文件时不做任何操作。
// 打开源文件失败时原样返回（不包装 ErrWrite），调用方据此区分源与目标的失败。
func (w *FS) CopyFile(ctx context.Context, id contract.ArtifactID, src string) error {
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if same(src, dest) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return &fs.PathError{Op: "open", Path: src, Err: errors.New("is a directory")}
	}
	if err := w.WriteMode(ctx, id, in, st.Mode().Perm()); err != nil {
		return err
	}
	_ = os.Chtimes(dest, st.ModTime(), st.ModTime())
	return nil
}

func (w *FS) prepare(id contract.ArtifactID) (string, error) {
	dest, err := w.mapPath(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return "", wrapWrite(dest, err)
	}
	return dest, nil
}

// mapPath: Clean + Join + 越界校验。禁止绝对路径、父级逃逸与卷名。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if rel == "." || rel == "" {
		return "", contract.ErrPathInvalid
	}
	if filepath.IsAbs(rel) {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader, perm os.FileMode) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// wrapWrite 把 I/O 错误归入 ErrWrite；取消与路径错误保持原样。
func wrapWrite(dest string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, contract.ErrPathInvalid) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", contract.ErrWrite, dest, err)
}

func same(a, b string) bool {
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

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
