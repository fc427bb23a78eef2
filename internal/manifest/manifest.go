// Package manifest 读写 NDJSON 清单：每行一个自包含记录。
//
// 读取：逐行独立解码，空行跳过，坏行不抛错而是随 Entry.Err 返回并计数；
// 可选用 jsonrepair 尝试修复坏行（默认关闭，修复后的记录单独计数）。
// 写出：整文件重写，经同目录临时文件 + 替换完成，失败时原文件不变。
package manifest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kaptinlin/jsonrepair"

	"formulaprep/pkg/contract"
	"formulaprep/plugins/writer/filesystem"
)

// Options: 清单读写选项。
type Options struct {
	// Repair: 解码失败的行先尝试 jsonrepair 修复。
	Repair bool `koanf:"repair"`
}

// Entry 为清单的一行（非空行）。
type Entry struct {
	// Line: 1 起的物理行号。
	Line   int
	Record contract.Record
	// Err 非空表示该行结构解码失败（包装 ErrRecordDecode），Record 无意义。
	Err error
	// Repaired: 该行经修复后才解码成功。
	Repaired bool
}

// OK 报告该行是否解码成功。
func (e Entry) OK() bool { return e.Err == nil }

// Stats: 一次读取的计数。Lines = Decoded + Malformed。
type Stats struct {
	Lines     int `json:"lines" yaml:"lines"`
	Decoded   int `json:"decoded" yaml:"decoded"`
	Malformed int `json:"malformed" yaml:"malformed"`
	Repaired  int `json:"repaired" yaml:"repaired"`
}

// Store 读写清单文件。
type Store struct {
	repair bool
}

// New 创建清单存储。opts 可为 nil。
func New(opts *Options) *Store {
	s := &Store{}
	if opts != nil {
		s.repair = opts.Repair
	}
	return s
}

// Load 读取 path 下的清单。文件不存在或是目录时返回包装 ErrConfig 的错误；
// 单行失败不返回错误。
func (s *Store) Load(ctx context.Context, path string) ([]Entry, Stats, error) {
	f, err := openRegular(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()
	return s.Decode(ctx, f)
}

// Decode 从 r 逐行解码。
func (s *Store) Decode(ctx context.Context, r io.Reader) ([]Entry, Stats, error) {
	var (
		out   []Entry
		st    Stats
		lineN int
	)
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return out, st, err
		}
		raw, rerr := br.ReadBytes('\n')
		if len(raw) > 0 {
			lineN++
			line := bytes.TrimSpace(raw)
			if lineN == 1 {
				line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
			}
			if len(line) > 0 {
				e := s.decodeLine(lineN, line)
				st.Lines++
				if e.OK() {
					st.Decoded++
					if e.Repaired {
						st.Repaired++
					}
				} else {
					st.Malformed++
				}
				out = append(out, e)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return out, st, rerr
		}
	}
	return out, st, nil
}

func (s *Store) decodeLine(n int, line []byte) Entry {
	var rec contract.Record
	err := json.Unmarshal(line, &rec)
	if err == nil {
		return Entry{Line: n, Record: rec}
	}
	if s.repair {
		if fixed, rerr := jsonrepair.JSONRepair(string(line)); rerr == nil {
			var again contract.Record
			if json.Unmarshal([]byte(fixed), &again) == nil {
				return Entry{Line: n, Record: again, Repaired: true}
			}
		}
	}
	return Entry{Line: n, Err: fmt.Errorf("%w: line %d: %v", contract.ErrRecordDecode, n, err)}
}

// Records 取出所有解码成功的记录，保持顺序。
func Records(entries []Entry) []contract.Record {
	out := make([]contract.Record, 0, len(entries))
	for _, e := range entries {
		if e.OK() {
			out = append(out, e.Record)
		}
	}
	return out
}

// Encode 按 NDJSON 写出：每条记录一行紧凑 JSON，行尾换行。
func Encode(w io.Writer, records []contract.Record) error {
	bw := bufio.NewWriter(w)
	for i := range records {
		b, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save 原子地整文件重写 path。已存在的文件保留原权限位。
// 持久化失败返回包装 ErrWrite 的错误。
func (s *Store) Save(ctx context.Context, path string, records []contract.Record) error {
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return fmt.Errorf("%w: encode manifest: %v", contract.ErrWrite, err)
	}
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	opts := &filesystem.Options{OutputDir: dir}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%w: manifest path is a directory: %s", contract.ErrConfig, path)
		}
		opts.PermFile = info.Mode().Perm()
	}
	w, err := filesystem.New(opts)
	if err != nil {
		return err
	}
	return w.Write(ctx, contract.ArtifactID(name), &buf)
}

func openRegular(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest not found: %s", contract.ErrConfig, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: manifest path is a directory: %s", contract.ErrConfig, path)
	}
	return os.Open(path)
}
