package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/betbot/fleet/pkg/logger"
)

// Service 持久化服务接口，按 (prefix, id, tag) 三元组切分出独立的 Store
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 单个状态对象的存取接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// IsNotExists 判断是否为数据不存在错误
func IsNotExists(err error) bool {
	return errors.Is(err, ErrNotExists)
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// storeKey 组合三元组并做文件名/DB key 安全化
func storeKey(prefix, id, tag string) string {
	return keySanitizer.ReplaceAllString(prefix+":"+id+":"+tag, "_")
}

// JSONFileService 把每个 Store 存成 baseDir 下的一个 JSON 文件。
// 默认后端：无外部依赖，状态可以直接用编辑器检查。
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &jsonFileStore{
		path: filepath.Join(s.baseDir, storeKey(prefix, id, tag)+".json"),
		dir:  s.baseDir,
	}
}

type jsonFileStore struct {
	path string
	dir  string
}

// Save 先写临时文件再重命名，写到一半崩溃不会损坏已有状态
func (s *jsonFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] save %s", s.path)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *jsonFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] load %s", s.path)
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
