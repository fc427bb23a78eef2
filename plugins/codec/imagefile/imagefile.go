package imagefile

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"formulaprep/pkg/contract"
)

// Options: 编码参数。
type Options struct {
	// Compression: PNG 压缩等级 default|speed|best|none。默认 default（适中、无损）。
	Compression string `koanf:"compression"`
	// JPEGQuality: JPEG 质量 1..100，默认 95。
	JPEGQuality int `koanf:"jpeg_quality"`
}

// Codec 负责按扩展名解码/编码图片文件。
type Codec struct {
	pngLevel png.CompressionLevel
	jpegQ    int
}

// New 创建编解码器。
func New(opts *Options) (*Codec, error) {
	c := &Codec{pngLevel: png.DefaultCompression, jpegQ: 95}
	if opts == nil {
		return c, nil
	}
	switch strings.ToLower(strings.TrimSpace(opts.Compression)) {
	case "", "default":
	case "speed":
		c.pngLevel = png.BestSpeed
	case "best":
		c.pngLevel = png.BestCompression
	case "none":
		c.pngLevel = png.NoCompression
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", contract.ErrInvalidInput, opts.Compression)
	}
	if opts.JPEGQuality != 0 {
		if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
			return nil, fmt.Errorf("%w: jpeg_quality must be 1..100", contract.ErrInvalidInput)
		}
		c.jpegQ = opts.JPEGQuality
	}
	return c, nil
}

// Supported 报告扩展名是否可编码。
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// Decode 解码任意已注册格式（png/jpeg/gif/bmp/tiff）。
func (c *Codec) Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", contract.ErrItemProcessing, err)
	}
	return img, nil
}

// Encode 按 name 的扩展名选择格式写出。
func (c *Codec) Encode(w io.Writer, name string, img image.Image) error {
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		enc := png.Encoder{CompressionLevel: c.pngLevel}
		err = enc.Encode(w, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: c.jpegQ})
	case ".gif":
		err = gif.Encode(w, img, nil)
	case ".bmp":
		err = bmp.Encode(w, img)
	case ".tif", ".tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: unsupported extension %q", contract.ErrItemProcessing, filepath.Ext(name))
	}
	if err != nil {
		return fmt.Errorf("%w: encode: %v", contract.ErrItemProcessing, err)
	}
	return nil
}
