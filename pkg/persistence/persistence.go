package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "persistence")

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 存储接口
type Store interface {
	Key() string
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

func storeKey(prefix, id, tag string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, id, tag)
}

// JSONFileService 基于 JSON 文件的持久化服务（每个 key 一个文件）
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

// NewStore key 形如 "state:<strategy>:<session>"
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{service: s, key: storeKey(prefix, id, tag)}
}

// Keys 列出目录下以 prefix 开头的 key（已做文件名安全化）
func (s *JSONFileService) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	safePrefix := keySanitizer.ReplaceAllString(prefix, "_")
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || !strings.HasPrefix(name, safePrefix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) Key() string { return s.key }

func (s *JSONFileStore) filePath() string {
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 写临时文件后原子替换
func (s *JSONFileStore) Save(data interface{}) error {
	log.Debugf("save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONFileStore) Load(data interface{}) error {
	log.Debugf("load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
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

// MemoryService 内存实现（dry-run 与测试）
type MemoryService struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryService() *MemoryService {
	return &MemoryService{data: make(map[string][]byte)}
}

func (m *MemoryService) NewStore(prefix, id, tag string) Store {
	return &memoryStore{service: m, key: storeKey(prefix, id, tag)}
}

type memoryStore struct {
	service *MemoryService
	key     string
}

func (s *memoryStore) Key() string { return s.key }

func (s *memoryStore) Save(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.service.mu.Lock()
	defer s.service.mu.Unlock()
	s.service.data[s.key] = b
	return nil
}

func (s *memoryStore) Load(data interface{}) error {
	s.service.mu.Lock()
	b, ok := s.service.data[s.key]
	s.service.mu.Unlock()
	if !ok {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
