package rotate

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"formulaprep/pkg/contract"
	"formulaprep/pkg/prng"
)

// Options: 旋转参数。
type Options struct {
	// MaxAngle: 角度上限（度），角度在 [-MaxAngle, +MaxAngle] 内均匀抽取。默认 5。
	MaxAngle float64 `koanf:"max_angle"`
	// Scale: 旋转同时的等比缩放。默认 1（不缩放）。
	Scale float64 `koanf:"scale"`
}

// Rotate 小角度旋转：最近邻采样（保持字形硬边、无模糊）、反射边界、画布扩展到旋转包围盒。
type Rotate struct {
	maxAngle float64
	scale    float64
}

// New 创建旋转变换。
func New(opts *Options) (*Rotate, error) {
	r := &Rotate{maxAngle: 5, scale: 1}
	if opts != nil {
		if opts.MaxAngle != 0 {
			r.maxAngle = opts.MaxAngle
		}
		if opts.Scale != 0 {
			r.scale = opts.Scale
		}
	}
	if r.maxAngle < 0 || r.maxAngle > 45 || math.IsNaN(r.maxAngle) {
		return nil, fmt.Errorf("%w: max_angle must be in (0,45], got %v", contract.ErrInvalidInput, r.maxAngle)
	}
	if r.scale <= 0 || math.IsNaN(r.scale) || math.IsInf(r.scale, 0) {
		return nil, fmt.Errorf("%w: scale must be > 0, got %v", contract.ErrInvalidInput, r.scale)
	}
	return r, nil
}

var _ contract.Transform = (*Rotate)(nil)

// AngleFor 返回 seed 对应的角度：SplitMix64(seed) 的首个 [0,1) 抽样 u，angle = -max + 2*max*u。
func (r *Rotate) AngleFor(seed uint64) float64 {
	u := prng.New(int64(seed)).Float64()
	return -r.maxAngle + 2*r.maxAngle*u
}

// Apply 按 seed 抽取角度并旋转；不修改 src。
func (r *Rotate) Apply(src image.Image, seed uint64) (image.Image, contract.TransformInfo, error) {
	angle := r.AngleFor(seed)
	out, err := Warp(src, angle, r.scale)
	if err != nil {
		return nil, contract.TransformInfo{}, err
	}
	return out, contract.TransformInfo{Angle: angle}, nil
}

// Matrix 构造正向仿射矩阵（源 → 目标）与目标尺寸。
// 角度为正表示逆时针（图像坐标 y 向下），中心取整数 (w/2, h/2)；
// 目标尺寸 new_w = int(h*|sin| + w*|cos|)，new_h = int(h*|cos| + w*|sin|)（含缩放），
// 平移补偿使旋转后内容居中于新画布。
func Matrix(w, h int, angle, scale float64) (f64.Aff3, int, int) {
	theta := angle * math.Pi / 180
	alpha := scale * math.Cos(theta)
	beta := scale * math.Sin(theta)
	cx, cy := float64(w/2), float64(h/2)
	m := f64.Aff3{
		alpha, beta, (1-alpha)*cx - beta*cy,
		-beta, alpha, beta*cx + (1-alpha)*cy,
	}
	nw := int(float64(h)*math.Abs(beta) + float64(w)*math.Abs(alpha))
	nh := int(float64(h)*math.Abs(alpha) + float64(w)*math.Abs(beta))
	nw, nh = max(nw, 1), max(nh, 1)
	m[2] += float64(nw)/2 - cx
	m[5] += float64(nh)/2 - cy
	return m, nw, nh
}

// Warp 旋转 src，返回与 src 像素格式一致（或兼容）的新图像。
func Warp(src image.Image, angle, scale float64) (image.Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image", contract.ErrItemProcessing)
	}
	m, nw, nh := Matrix(w, h, angle, scale)
	inv, ok := invert(m)
	if !ok {
		return nil, fmt.Errorf("%w: singular transform", contract.ErrItemProcessing)
	}
	dst := newLike(src, image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		fy := float64(y)
		for x := 0; x < nw; x++ {
			fx := float64(x)
			sx := inv[0]*fx + inv[1]*fy + inv[2]
			sy := inv[3]*fx + inv[4]*fy + inv[5]
			ix := reflect(int(math.Floor(sx+0.5)), w)
			iy := reflect(int(math.Floor(sy+0.5)), h)
			dst.Set(x, y, src.At(b.Min.X+ix, b.Min.Y+iy))
		}
	}
	return dst, nil
}

// invert 求 2x3 仿射矩阵的逆。
func invert(m f64.Aff3) (f64.Aff3, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 || math.IsNaN(det) {
		return f64.Aff3{}, false
	}
	a := m[4] / det
	b := -m[1] / det
	c := -m[3] / det
	d := m[0] / det
	return f64.Aff3{
		a, b, -(a*m[2] + b*m[5]),
		c, d, -(c*m[2] + d*m[5]),
	}, true
}

// reflect 反射边界（边缘像素重复）：fedcba|abcdefgh|hgfedcb。
func reflect(p, n int) int {
	if n == 1 {
		return 0
	}
	for p < 0 || p >= n {
		if p < 0 {
			p = -p - 1
		} else {
			p = 2*n - p - 1
		}
	}
	return p
}

// newLike 按源图像的像素模型分配目标图像。调色板图保持原调色板。
func newLike(src image.Image, r image.Rectangle) draw.Image {
	switch s := src.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.Paletted:
		return image.NewPaletted(r, append(color.Palette(nil), s.Palette...))
	case *image.RGBA:
		return image.NewRGBA(r)
	case *image.RGBA64:
		return image.NewRGBA64(r)
	case *image.NRGBA64:
		return image.NewNRGBA64(r)
	case *image.CMYK:
		return image.NewCMYK(r)
	case *image.Alpha:
		return image.NewAlpha(r)
	default:
		return image.NewNRGBA(r)
	}
}
