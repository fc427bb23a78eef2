package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Template 为 config init 写出的起始配置，所有键都列出默认值。
const Template = `# formulaprep 配置
# 优先级：命令行 > 环境变量 (FORMULAPREP_<SECTION>__<KEY>) > 本文件 > 内置默认

[logging]
level = "info"        # debug|info|warn|error
dir = "logs"          # 为空写 stderr

[naming]
id_digits = 6         # 6: image_000123.png；3: 旧格式 image_123.png
extensions = [".png"]

[manifest]
repair = false        # 坏行先尝试 JSON 修复

[reconcile]
manifest = "train.jsonl"
images = "images"
bad_ids = ""
mode = "auto"         # auto|interactive|skip
preview = 10

[filter]
manifest = ""
output = ""
bad_ids = ""

[augment]
images = "images"
output = ""           # 为空表示原地增强
manifest = ""         # 只增强被该清单引用的图片
backup = false        # 原地增强前写 <name>.bak
strategy = "deterministic"  # deterministic|random|all
count = 0             # <=0 时按 ratio
ratio = 0.1
seed = 42
max_angle = 5.0
scale = 1.0
compression = "default"     # default|speed|best|none
jpeg_quality = 95

[rewrite]
input = "train.jsonl"
output = ""
old_prefix = "images/"
new_prefix = ""
validate = false
base_dir = "."

[pipeline]
stages = ["reconcile", "augment", "rewrite"]

[output]
format = "text"       # text|json|yaml
`

// WriteTemplate 写出模板；目标已存在时报错，绝不覆盖。
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(Template); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
