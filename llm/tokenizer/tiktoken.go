package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter 用 tiktoken 编码计数.
// Gemini 与 DeepSeek 没有公开的 tiktoken 编码, 使用 cl100k_base 近似.
type TiktokenCounter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// 模型前缀到编码的映射.
var modelEncodings = map[string]string{
	"gpt-4o":   "o200k_base",
	"gpt-4":    "cl100k_base",
	"deepseek": "cl100k_base",
	"gemini":   "cl100k_base",
}

// NewTiktokenCounter 为给定模型创建计数器, 编码数据在第一次使用时加载.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding := "cl100k_base"
	best := 0
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			encoding, best = enc, len(prefix)
		}
	}
	return &TiktokenCounter{model: model, encoding: encoding}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Encoding 返回所用编码名.
func (t *TiktokenCounter) Encoding() string { return t.encoding }

func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
