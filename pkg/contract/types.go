package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ItemID: 从图片文件名中提取的定宽数字编号（如 "000123"）。
type ItemID string

// Message: 单条会话消息（role 为 user/assistant）。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record: 清单（NDJSON）的一行。
// 约束：
//   - Messages/Images 保持原有顺序；
//   - 非 messages/images 的其他字段原样保留在 Extra 中，写回时按键名排序追加；
//   - 记录之间没有语义依赖，顺序即数据集的规范顺序。
type Record struct {
	Messages []Message
	Images   []string
	Extra    map[string]json.RawMessage
}

// UnmarshalJSON 结构化解码：顶层必须为对象，messages 为消息数组，images 为字符串数组。
// 缺失 images 视为空数组（该记录将被 Reconciler 判为无效）。
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record is null")
	}
	var out Record
	if m, ok := raw["messages"]; ok && !isNull(m) {
		if err := json.Unmarshal(m, &out.Messages); err != nil {
			return fmt.Errorf("messages: %w", err)
		}
	}
	if im, ok := raw["images"]; ok && !isNull(im) {
		if err := json.Unmarshal(im, &out.Images); err != nil {
			return fmt.Errorf("images: %w", err)
		}
	}
	delete(raw, "messages")
	delete(raw, "images")
	if len(raw) > 0 {
		out.Extra = raw
	}
	*r = out
	return nil
}

// MarshalJSON 紧凑输出：messages、images 在前，其余字段按键名排序。
// 不转义 HTML 字符，保证 LaTeX 中的 < > & 原样写出。
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	msgs := r.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	imgs := r.Images
	if imgs == nil {
		imgs = []string{}
	}
	buf.WriteString(`"messages":`)
	if err := encodeCompact(&buf, msgs); err != nil {
		return nil, err
	}
	buf.WriteString(`,"images":`)
	if err := encodeCompact(&buf, imgs); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		if err := encodeCompact(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := json.Compact(&buf, r.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone 深拷贝记录（改写路径前使用，避免修改调用方持有的切片）。
func (r Record) Clone() Record {
	out := Record{}
	if r.Messages != nil {
		out.Messages = append([]Message(nil), r.Messages...)
	}
	if r.Images != nil {
		out.Images = append([]string(nil), r.Images...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func encodeCompact(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder 总会追加换行
	buf.Truncate(buf.Len() - 1)
	return nil
}

func isNull(b json.RawMessage) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// ImageEntry: 图片目录中的一个文件（索引时刻的只读视图）。
// ID 为空表示文件名不匹配编号模式，无法满足任何清单引用。
type ImageEntry struct {
	Name string
	ID   ItemID
}

// HasID 报告该文件是否提取到了编号。
func (e ImageEntry) HasID() bool { return e.ID != "" }

// Outcome: 单个候选项的增强结果。
type Outcome int

const (
	// CopiedVerbatim: 未被选中，逐字节复制（原地模式下保持不动）。
	CopiedVerbatim Outcome = iota
	// Augmented: 已解码、旋转并重新编码写出。
	Augmented
	// Failed: 选中但处理失败，已回退为逐字节复制。
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Augmented:
		return "augmented"
	case Failed:
		return "failed"
	default:
		return "copied"
	}
}

// MarshalText 让 Outcome 在 JSON/YAML 报告中以名称出现。
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ItemResult: 单个候选项的处理结果。
type ItemResult struct {
	Index   int     `json:"index" yaml:"index"`
	Name    string  `json:"name" yaml:"name"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	// Angle: 实际旋转角度（度），仅 Augmented 有意义。
	Angle float64 `json:"angle,omitempty" yaml:"angle,omitempty"`
	Err   string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Totals: 一次增强运行的汇总计数，调用方据此断言。
// Processed = Augmented + Failed + Skipped。
type Totals struct {
	Processed int `json:"processed" yaml:"processed"`
	Augmented int `json:"augmented" yaml:"augmented"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// Add 按结果累加计数。
func (t *Totals) Add(o Outcome) {
	t.Processed++
	switch o {
	case Augmented:
		t.Augmented++
	case Failed:
		t.Failed++
	default:
		t.Skipped++
	}
}

func (t Totals) String() string {
	return fmt.Sprintf("processed=%d augmented=%d failed=%d skipped=%d", t.Processed, t.Augmented, t.Failed, t.Skipped)
}

// Tally 汇总一组结果。
func Tally(results []ItemResult) Totals {
	var t Totals
	for _, r := range results {
		t.Add(r.Outcome)
	}
	return t
}
