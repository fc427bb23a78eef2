package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaprep/internal/augment"
	"formulaprep/internal/diag"
	"formulaprep/internal/reconcile"
	"formulaprep/internal/rewrite"
	"formulaprep/pkg/contract"
)

// 桩件 ----------------------------------------------------
type stubReconciler struct {
	err   error
	calls *[]string
}

func (s stubReconciler) Reconcile(ctx context.Context, opts reconcile.Options) ([]contract.Record, reconcile.Report, error) {
	*s.calls = append(*s.calls, "reconcile")
	return nil, reconcile.Report{Status: reconcile.StatusApplied, Total: 3, Kept: 2, Removed: 1}, s.err
}

type stubAugmenter struct {
	err   error
	calls *[]string
}

func (s stubAugmenter) Run(ctx context.Context, opts augment.Options) (augment.Report, error) {
	*s.calls = append(*s.calls, "augment")
	return augment.Report{Totals: contract.Totals{Processed: 4, Augmented: 1, Skipped: 3}}, s.err
}

type stubRewriter struct {
	calls *[]string
}

func (s stubRewriter) Rewrite(ctx context.Context, opts rewrite.Options) (rewrite.Report, error) {
	*s.calls = append(*s.calls, "rewrite")
	return rewrite.Report{Records: 2}, nil
}

func comps(calls *[]string, recErr, augErr error) Components {
	return Components{
		Reconciler: stubReconciler{err: recErr, calls: calls},
		Augmenter:  stubAugmenter{err: augErr, calls: calls},
		Rewriter:   stubRewriter{calls: calls},
	}
}

// TestRunOrder 默认按数据流顺序执行全部阶段。
func TestRunOrder(t *testing.T) {
	var calls []string
	var buf bytes.Buffer
	res, err := Run(context.Background(), comps(&calls, nil, nil), Settings{}, diag.NewLoggerTo(&buf, "c", "info"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStages, calls)
	require.NotNil(t, res.Reconcile)
	assert.Equal(t, 2, res.Reconcile.Kept)
	assert.Equal(t, 1, res.Augment.Totals.Augmented)
	assert.Equal(t, 2, res.Rewrite.Records)
	assert.Empty(t, res.Failed)
	assert.Contains(t, buf.String(), `"stage":"finish"`)
}

// TestRunStopsAtFirstFailure 阶段失败后不再运行后续阶段，错误保留哨兵。
func TestRunStopsAtFirstFailure(t *testing.T) {
	var calls []string
	res, err := Run(context.Background(), comps(&calls, nil, contract.ErrWrite), Settings{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrWrite))
	assert.Contains(t, err.Error(), "augment")
	assert.Equal(t, []string{"reconcile", "augment"}, calls)
	assert.Equal(t, StageAugment, res.Failed)
	assert.NotNil(t, res.Augment)
	assert.Nil(t, res.Rewrite)
}

// TestRunSubset 只运行配置的阶段。
func TestRunSubset(t *testing.T) {
	var calls []string
	_, err := Run(context.Background(), comps(&calls, nil, nil), Settings{Stages: []string{StageRewrite, StageReconcile}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rewrite", "reconcile"}, calls)
}

// TestRunInvalidStages 未知或重复阶段为配置错误。
func TestRunInvalidStages(t *testing.T) {
	var calls []string
	_, err := Run(context.Background(), comps(&calls, nil, nil), Settings{Stages: []string{"render"}}, nil)
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, err = Run(context.Background(), comps(&calls, nil, nil), Settings{Stages: []string{"augment", "augment"}}, nil)
	assert.ErrorIs(t, err, contract.ErrConfig)
	assert.Empty(t, calls)
}

// TestRunMissingComponent 启用但未组装的阶段。
func TestRunMissingComponent(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{Stages: []string{StageAugment}}, nil)
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestRunCanceled 取消在阶段之间生效。
func TestRunCanceled(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, comps(&calls, nil, nil), Settings{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageReconcile, res.Failed)
	assert.Empty(t, calls)
}
