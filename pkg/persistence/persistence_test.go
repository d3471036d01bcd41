package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

type testState struct {
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// TestJSONFileRoundTrip JSON 文件存储保存与读取往返
func TestJSONFileRoundTrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("fleet", "acct-1", "state")

	in := testState{Name: "alpha", Balance: 123.45}
	if err := store.Save(in); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	var out testState
	if err := store.Load(&out); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if out != in {
		t.Errorf("往返后数据应该一致: in=%+v out=%+v", in, out)
	}
}

// TestLoadNotExists 数据不存在返回 ErrNotExists
func TestLoadNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("fleet", "missing", "state")

	var out testState
	err := store.Load(&out)
	if !IsNotExists(err) {
		t.Errorf("应该返回 ErrNotExists，实际为 %v", err)
	}
}

// TestKeySanitized 非法字符的 key 也能落成安全文件名
func TestKeySanitized(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("fleet", "a/b:c", "state")

	if err := store.Save(testState{Name: "x"}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读目录失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("应该只有 1 个文件，实际为 %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".json" {
		t.Errorf("文件应该以 .json 结尾，实际为 %s", entries[0].Name())
	}
}

// TestSaveOverwrite 重复保存覆盖旧数据
func TestSaveOverwrite(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("fleet", "acct-1", "state")

	_ = store.Save(testState{Name: "old", Balance: 1})
	if err := store.Save(testState{Name: "new", Balance: 2}); err != nil {
		t.Fatalf("覆盖保存失败: %v", err)
	}

	var out testState
	if err := store.Load(&out); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if out.Name != "new" || out.Balance != 2 {
		t.Errorf("应该读到最新数据，实际为 %+v", out)
	}
}
