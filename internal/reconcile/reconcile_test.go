package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaprep/internal/manifest"
	"formulaprep/pkg/contract"
	"formulaprep/plugins/index/imagedir"
)

func rec(imgs ...string) string {
	q := make([]string, len(imgs))
	for i, s := range imgs {
		q[i] = fmt.Sprintf("%q", s)
	}
	return `{"messages":[{"role":"user","content":"<image>"},{"role":"assistant","content":"x"}],"images":[` + strings.Join(q, ",") + `]}`
}

type fixture struct {
	dir, images, manifest string
	r                     *Reconciler
}

func setup(t *testing.T, ids []int, lines ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(images, 0o755))
	for _, id := range ids {
		require.NoError(t, os.WriteFile(filepath.Join(images, fmt.Sprintf("image_%06d.png", id)), []byte("png"), 0o644))
	}
	m := filepath.Join(dir, "train.jsonl")
	require.NoError(t, os.WriteFile(m, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	idx, err := imagedir.New(nil)
	require.NoError(t, err)
	return fixture{dir: dir, images: images, manifest: m, r: New(idx, manifest.New(nil), nil)}
}

// TestReconcileDropRule 三条记录，第二条引用缺失图片：保留 2 条，removed=1，并写回。
func TestReconcileDropRule(t *testing.T) {
	f := setup(t, []int{1, 3},
		rec("images/image_000001.png"),
		rec("images/image_000002.png"),
		rec("images/image_000003.png"))
	kept, rep, err := f.r.Reconcile(context.Background(), Options{Manifest: f.manifest, Images: f.images, Mode: ModeAuto})
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Kept)
	assert.Equal(t, 1, rep.Removed)
	assert.Equal(t, 1, rep.MissingRecords)
	assert.Equal(t, []string{"images/image_000002.png"}, rep.Preview)
	assert.Equal(t, StatusApplied, rep.Status)
	assert.True(t, rep.Written)

	b, err := os.ReadFile(f.manifest)
	require.NoError(t, err)
	assert.Equal(t, rec("images/image_000001.png")+"\n"+rec("images/image_000003.png")+"\n", string(b))
}

// TestReconcileCategories 解码失败、空 images、部分缺失、bad-ID 各自计数。
func TestReconcileCategories(t *testing.T) {
	f := setup(t, []int{1, 2, 3},
		rec("images/image_000001.png"),
		`{"images": [`,
		rec(),
		rec("images/image_000001.png", "images/image_000009.png"),
		rec("images/image_000002.png"),
		rec("images\\image_000003.png"),
		rec("images/image_3.png"))
	bad := filepath.Join(f.dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("# manual\nimage_000002.png\nnot-an-id\n"), 0o644))

	kept, rep, err := f.r.Reconcile(context.Background(), Options{Manifest: f.manifest, Images: f.images, BadIDs: bad, Mode: ModeInteractive})
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.Equal(t, Report{
		Status: StatusReportOnly, Mode: ModeInteractive, Manifest: f.manifest,
		Indexed: 3, Total: 7, Kept: 2, Removed: 5,
		DecodeErrors: 1, EmptyImages: 1, MissingRecords: 2, BadRecords: 1,
		MissingRefs: 2, Preview: []string{"images/image_000009.png", "images/image_3.png"},
		InvalidBad: 1,
	}, rep)
	assert.Equal(t, rep.Total, rep.Kept+rep.DecodeErrors+rep.EmptyImages+rep.MissingRecords+rep.BadRecords)
}

// TestReconcileInteractiveReadOnly interactive 模式前后清单逐字节相同。
func TestReconcileInteractiveReadOnly(t *testing.T) {
	f := setup(t, []int{1}, rec("images/image_000001.png"), rec("images/image_000002.png"), "garbage")
	before, _ := os.ReadFile(f.manifest)
	st0, _ := os.Stat(f.manifest)
	_, rep, err := f.r.Reconcile(context.Background(), Options{Manifest: f.manifest, Images: f.images, Mode: ModeInteractive})
	require.NoError(t, err)
	assert.False(t, rep.Written)
	after, _ := os.ReadFile(f.manifest)
	st1, _ := os.Stat(f.manifest)
	assert.Equal(t, before, after)
	assert.Equal(t, st0.ModTime(), st1.ModTime())
}

// TestReconcileSkip skip 不做任何计算，路径不存在也不报错。
func TestReconcileSkip(t *testing.T) {
	idx, _ := imagedir.New(nil)
	r := New(idx, manifest.New(nil), nil)
	kept, rep, err := r.Reconcile(context.Background(), Options{Manifest: "/nope.jsonl", Images: "/nope", Mode: ModeSkip})
	require.NoError(t, err)
	assert.Nil(t, kept)
	assert.Equal(t, StatusSkipped, rep.Status)
	assert.Equal(t, "reconcile: skipped", rep.String())
}

// TestReconcileConfigErrorsBeforeWrite 目录缺失在写入前报错，清单不变。
func TestReconcileConfigErrorsBeforeWrite(t *testing.T) {
	f := setup(t, nil, rec("images/image_000001.png"))
	before, _ := os.ReadFile(f.manifest)
	ctx := context.Background()

	_, _, err := f.r.Reconcile(ctx, Options{Manifest: f.manifest, Images: filepath.Join(f.dir, "missing")})
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, _, err = f.r.Reconcile(ctx, Options{Manifest: f.manifest, Images: f.images, BadIDs: filepath.Join(f.dir, "none.txt")})
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, _, err = f.r.Reconcile(ctx, Options{Manifest: filepath.Join(f.dir, "x.jsonl"), Images: f.images})
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, _, err = f.r.Reconcile(ctx, Options{Manifest: f.manifest, Images: f.images, Mode: "bogus"})
	assert.ErrorIs(t, err, contract.ErrConfig)

	after, _ := os.ReadFile(f.manifest)
	assert.Equal(t, before, after)
}

// TestReconcilePreviewCap 预览最多 MaxPreview 条，总数照实计数。
func TestReconcilePreviewCap(t *testing.T) {
	var lines []string
	for i := 100; i < 125; i++ {
		lines = append(lines, rec(fmt.Sprintf("images/image_%06d.png", i)))
	}
	f := setup(t, nil, lines...)
	_, rep, err := f.r.Reconcile(context.Background(), Options{Manifest: f.manifest, Images: f.images, Mode: ModeInteractive, Preview: 50})
	require.NoError(t, err)
	assert.Len(t, rep.Preview, MaxPreview)
	assert.Equal(t, 25, rep.MissingRefs)

	_, rep, _ = f.r.Reconcile(context.Background(), Options{Manifest: f.manifest, Images: f.images, Mode: ModeInteractive, Preview: 3})
	assert.Len(t, rep.Preview, 3)
}

// TestReconcileIdempotent 第二次 auto 运行不再删除任何记录。
func TestReconcileIdempotent(t *testing.T) {
	f := setup(t, []int{1}, rec("images/image_000001.png"), rec("images/image_000002.png"))
	ctx := context.Background()
	_, _, err := f.r.Reconcile(ctx, Options{Manifest: f.manifest, Images: f.images})
	require.NoError(t, err)
	first, _ := os.ReadFile(f.manifest)
	_, rep, err := f.r.Reconcile(ctx, Options{Manifest: f.manifest, Images: f.images})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Removed)
	second, _ := os.ReadFile(f.manifest)
	assert.Equal(t, first, second)
}

// TestParseMode 模式解析。
func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Interactive ")
	require.NoError(t, err)
	assert.Equal(t, ModeInteractive, m)
	m, _ = ParseMode("")
	assert.Equal(t, ModeAuto, m)
	_, err = ParseMode("manual")
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestFilterByIDs 按人工列表过滤并写到新文件，原清单不变。
func TestFilterByIDs(t *testing.T) {
	f := setup(t, nil,
		rec("images/image_000001.png"),
		rec("images/image_000002.png"),
		rec("images/image_000003.png", "images/image_000004.png"),
		"{oops")
	bad := filepath.Join(f.dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("000002, 000004\n"), 0o644))
	out := filepath.Join(f.dir, "clean.jsonl")
	before, _ := os.ReadFile(f.manifest)

	kept, rep, err := f.r.FilterByIDs(context.Background(), FilterOptions{Manifest: f.manifest, Output: out, BadIDs: bad})
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.Equal(t, FilterReport{Output: out, BadIDs: 2, Total: 4, Kept: 1, Removed: 3, DecodeErrors: 1}, rep)
	b, _ := os.ReadFile(out)
	assert.Equal(t, rec("images/image_000001.png")+"\n", string(b))
	after, _ := os.ReadFile(f.manifest)
	assert.Equal(t, before, after)

	_, _, err = f.r.FilterByIDs(context.Background(), FilterOptions{Manifest: f.manifest})
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestLoadBadIDs 三位宽度列表。
func TestLoadBadIDs(t *testing.T) {
	p, _ := imagedir.NewPattern(imagedir.LegacyDigits)
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("007\nimage_012.png\n000013\n\n"), 0o644))
	b, err := LoadBadIDs(path, p)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Has("007"))
	assert.True(t, b.Has("012"))
	assert.Equal(t, 1, b.Invalid)
	var nilBad *BadIDs
	assert.False(t, nilBad.Has("007"))
}
