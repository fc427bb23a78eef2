package testdata

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "formulaprep/internal/config"
	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/internal/pipeline"
	"formulaprep/pkg/contract"
)

// fixture 构造图片目录与清单：ids 为实际存在的图片，refs 为清单引用的编号（每条一张）。
func fixture(t *testing.T, ids, refs []int) (root string) {
	t.Helper()
	root = t.TempDir()
	imgDir := filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(imgDir, 0o755))
	for _, id := range ids {
		img := image.NewGray(image.Rect(0, 0, 20, 10))
		for x := 2; x < 18; x++ {
			img.SetGray(x, 5, color.Gray{Y: 255})
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		require.NoError(t, os.WriteFile(filepath.Join(imgDir, fmt.Sprintf("image_%06d.png", id)), buf.Bytes(), 0o644))
	}
	var m strings.Builder
	for _, id := range refs {
		fmt.Fprintf(&m, `{"messages":[{"role":"user","content":"<image>"},{"role":"assistant","content":"x^%d"}],"images":["images/image_%06d.png"]}`+"\n", id, id)
	}
	// 一行坏 JSON 与一条空 images 记录
	m.WriteString("{not json\n")
	m.WriteString(`{"messages":[],"images":[]}` + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "train.jsonl"), []byte(m.String()), 0o644))
	return root
}

func load(t *testing.T, root string, over map[string]any) cfgpkg.Config {
	t.Helper()
	base := map[string]any{
		"logging.dir":        "",
		"reconcile.manifest": filepath.Join(root, "train.jsonl"),
		"reconcile.images":   filepath.Join(root, "images"),
		"augment.images":     filepath.Join(root, "images"),
		"augment.output":     filepath.Join(root, "aug"),
		"augment.manifest":   filepath.Join(root, "train.jsonl"),
		"rewrite.input":      filepath.Join(root, "train.jsonl"),
		"rewrite.output":     filepath.Join(root, "train.aug.jsonl"),
		"rewrite.old_prefix": "images/",
		"rewrite.new_prefix": "aug/",
		"rewrite.validate":   true,
		"rewrite.base_dir":   root,
	}
	for k, v := range over {
		base[k] = v
	}
	_, cfg, err := cfgpkg.Load(cfgpkg.Source{Overrides: base})
	require.NoError(t, err)
	require.NoError(t, cfgpkg.Validate(cfg))
	return cfg
}

func runAll(t *testing.T, cfg cfgpkg.Config) pipeline.Result {
	t.Helper()
	var logs bytes.Buffer
	logger := diag.NewLoggerTo(&logs, "e2e", "debug")
	parts, err := cfgpkg.Assemble(cfg, logger)
	require.NoError(t, err)
	res, err := pipeline.Run(context.Background(), parts.Components(), cfgpkg.Settings(cfg), logger)
	require.NoError(t, err, logs.String())
	return res
}

// E2E: 核对 → 增强（复制到新目录）→ 前缀改写，结果可复现。
func TestE2EReconcileAugmentRewrite(t *testing.T) {
	root := fixture(t, []int{1, 2, 3, 4, 5, 6}, []int{1, 2, 3, 4, 5, 6, 42})
	cfg := load(t, root, map[string]any{"augment.count": 3})
	res := runAll(t, cfg)

	rec := res.Reconcile
	require.NotNil(t, rec)
	assert.Equal(t, 9, rec.Total)
	assert.Equal(t, 6, rec.Kept)
	assert.Equal(t, 3, rec.Removed)
	assert.Equal(t, 1, rec.DecodeErrors)
	assert.Equal(t, 1, rec.EmptyImages)
	assert.Equal(t, 1, rec.MissingRecords)
	assert.True(t, rec.Written)

	aug := res.Augment
	require.NotNil(t, aug)
	assert.Equal(t, 6, aug.Candidates)
	assert.Equal(t, contract.Totals{Processed: 6, Augmented: 3, Skipped: 3}, aug.Totals)
	// 等间隔 6 选 3 → 下标 0,2,4
	var augmented []string
	for _, it := range aug.Items {
		if it.Outcome == contract.Augmented {
			augmented = append(augmented, it.Name)
		}
	}
	assert.Empty(t, cmp.Diff([]string{"image_000001.png", "image_000003.png", "image_000005.png"}, augmented))

	// 未选中项逐字节一致
	for _, name := range []string{"image_000002.png", "image_000004.png", "image_000006.png"} {
		a, err := os.ReadFile(filepath.Join(root, "images", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(root, "aug", name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
	// 选中项画布扩大
	f, err := os.Open(filepath.Join(root, "aug", "image_000001.png"))
	require.NoError(t, err)
	cfgImg, err := png.DecodeConfig(f)
	_ = f.Close()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfgImg.Width, 20)

	rw := res.Rewrite
	require.NotNil(t, rw)
	assert.Equal(t, 6, rw.Records)
	assert.Equal(t, 6, rw.Rewritten)
	assert.Equal(t, 0, rw.Unresolved)

	entries, _, err := manifest.New(nil).Load(context.Background(), filepath.Join(root, "train.aug.jsonl"))
	require.NoError(t, err)
	for _, rec := range manifest.Records(entries) {
		require.Len(t, rec.Images, 1)
		assert.True(t, strings.HasPrefix(rec.Images[0], "aug/"), rec.Images[0])
	}

	// 再次运行：清单已干净，增强结果逐字节相同
	first, err := os.ReadFile(filepath.Join(root, "aug", "image_000003.png"))
	require.NoError(t, err)
	res2 := runAll(t, cfg)
	assert.Equal(t, 0, res2.Reconcile.Removed)
	second, err := os.ReadFile(filepath.Join(root, "aug", "image_000003.png"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// E2E: 原地增强 + 备份；interactive 核对不写清单。
func TestE2EInPlaceWithBackup(t *testing.T) {
	root := fixture(t, []int{1, 2, 3}, []int{1, 2, 9})
	before, err := os.ReadFile(filepath.Join(root, "train.jsonl"))
	require.NoError(t, err)
	orig, err := os.ReadFile(filepath.Join(root, "images", "image_000002.png"))
	require.NoError(t, err)

	cfg := load(t, root, map[string]any{
		"reconcile.mode":   "interactive",
		"augment.output":   "",
		"augment.manifest": "",
		"augment.backup":   true,
		"augment.strategy": "all",
		"pipeline.stages":  "reconcile,augment",
	})
	res := runAll(t, cfg)
	assert.Nil(t, res.Rewrite)
	assert.False(t, res.Reconcile.Written)
	assert.Equal(t, 3, res.Reconcile.Removed)
	assert.Equal(t, 1, res.Reconcile.MissingRecords)
	after, _ := os.ReadFile(filepath.Join(root, "train.jsonl"))
	assert.Equal(t, before, after)

	assert.True(t, res.Augment.InPlace)
	assert.Equal(t, 3, res.Augment.Backups)
	bak, err := os.ReadFile(filepath.Join(root, "images", "image_000002.png.bak"))
	require.NoError(t, err)
	assert.Equal(t, orig, bak)

	// 第二次运行不覆盖首次备份
	res = runAll(t, cfg)
	assert.Equal(t, 0, res.Augment.Backups)
	bak2, _ := os.ReadFile(filepath.Join(root, "images", "image_000002.png.bak"))
	assert.Equal(t, orig, bak2)
}
