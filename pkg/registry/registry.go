package registry

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"formulaprep/pkg/contract"
	"formulaprep/plugins/codec/imagefile"
	"formulaprep/plugins/selector/all"
	"formulaprep/plugins/selector/seeded"
	"formulaprep/plugins/selector/stride"
	"formulaprep/plugins/transform/rotate"
)

// strictDecode: 按 koanf 标签解码，拒绝未知字段，允许弱类型（环境变量传入的字符串数字）。
func strictDecode(raw map[string]any, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           v,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrConfig, err)
	}
	return nil
}

// NewSelector 工厂签名：接收原样选项映射。
type NewSelector func(raw map[string]any) (contract.Selector, error)

// NewTransform 工厂签名。
type NewTransform func(raw map[string]any) (contract.Transform, error)

// Selector 选择策略注册表（显式、零反射）。
var Selector = map[string]NewSelector{
	// all: 全选
	"all": func(raw map[string]any) (contract.Selector, error) {
		// 全选不需要数量/种子，忽略这些键
		return all.New(), nil
	},
	// deterministic: 等间隔，无需种子
	"deterministic": func(raw map[string]any) (contract.Selector, error) {
		var opts stride.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return stride.New(&opts), nil
	},
	// random: SplitMix64 + 部分 Fisher–Yates
	"random": func(raw map[string]any) (contract.Selector, error) {
		var opts seeded.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return seeded.New(&opts), nil
	},
}

// Transform 变换注册表。
var Transform = map[string]NewTransform{
	// rotate: 小角度旋转，最近邻 + 反射边界
	"rotate": func(raw map[string]any) (contract.Transform, error) {
		var opts rotate.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return rotate.New(&opts)
	},
}

// NewCodec 构造图片编解码器。
func NewCodec(raw map[string]any) (*imagefile.Codec, error) {
	var opts imagefile.Options
	if err := strictDecode(raw, &opts); err != nil {
		return nil, err
	}
	return imagefile.New(&opts)
}

// LookupSelector 按名查找；未知名称返回 ErrUnknownStrategy。
func LookupSelector(name string) (NewSelector, error) {
	f, ok := Selector[name]
	if !ok {
		return nil, fmt.Errorf("%w: selector %q (known: %v)", contract.ErrUnknownStrategy, name, Names(Selector))
	}
	return f, nil
}

// LookupTransform 按名查找。
func LookupTransform(name string) (NewTransform, error) {
	f, ok := Transform[name]
	if !ok {
		return nil, fmt.Errorf("%w: transform %q (known: %v)", contract.ErrUnknownStrategy, name, Names(Transform))
	}
	return f, nil
}

// Names 返回注册表中的名称（排序）。
func Names[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
