package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/wentf9/nirvana/pkg/crypto"
	"github.com/wentf9/nirvana/pkg/models"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Load() (*models.File, error)
}

type defaultStore struct {
	Path    string
	KeyPath string // 解密 ENC: 字段用的密钥文件，只有出现加密字段时才读取
}

func NewDefaultStore(path, keyPath string) Store {
	return &defaultStore{
		Path:    path,
		KeyPath: keyPath,
	}
}

func (s *defaultStore) Load() (*models.File, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read config '%s': %w", s.Path, err)
	}
	// 未知字段直接报错，避免拼写错误的安全参数被静默忽略
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f models.File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse config '%s': %w", s.Path, err)
	}
	if err := s.reveal(&f.Target); err != nil {
		return nil, err
	}
	return &f, nil
}

// reveal 解密 Target 中的 ENC: 字段
func (s *defaultStore) reveal(t *models.Target) error {
	secrets := []*string{&t.Password, &t.Passphrase, &t.SudoPassword}
	sealed := false
	for _, p := range secrets {
		if crypto.IsSealed(*p) {
			sealed = true
			break
		}
	}
	if !sealed {
		return nil
	}

	key, err := crypto.LoadKey(s.KeyPath)
	if err != nil {
		return fmt.Errorf("config has sealed secrets: %w", err)
	}
	c, err := crypto.NewCrypter(key)
	if err != nil {
		return err
	}
	for _, p := range secrets {
		plain, err := c.Reveal(*p)
		if err != nil {
			return fmt.Errorf("reveal sealed secret: %w", err)
		}
		*p = plain
	}
	return nil
}

// Load 读取并校验配置文件
func Load(path, keyPath string) (*RunConfig, error) {
	f, err := NewDefaultStore(path, keyPath).Load()
	if err != nil {
		return nil, err
	}
	return New(f)
}
