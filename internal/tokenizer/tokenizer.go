package tokenizer

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"unicode"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

const (
	PadID = 0
	UnkID = 1
	ClsID = 2
	SepID = 3

	reservedIDs = 4
)

// Encoding is the tokenized form of one input text.
type Encoding struct {
	IDs           []int
	AttentionMask []int
}

func (e Encoding) Len() int {
	return len(e.IDs)
}

type Tokenizer interface {
	Encode(text string, addSpecialTokens bool) (Encoding, error)
	EncodeBatch(texts []string, addSpecialTokens bool) ([]Encoding, error)
	VocabSize() int
	Config() Config
}

type Config struct {
	Type      string `json:"type"`
	VocabSize int    `json:"vocab_size"`
	Lowercase bool   `json:"lowercase"`
	PadToken  string `json:"pad_token"`
	UnkToken  string `json:"unk_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
}

func DefaultConfig(vocabSize int) Config {
	return Config{
		Type:      "hash",
		VocabSize: vocabSize,
		Lowercase: true,
		PadToken:  "[PAD]",
		UnkToken:  "[UNK]",
		ClsToken:  "[CLS]",
		SepToken:  "[SEP]",
	}
}

// HashTokenizer maps words to ids by hashing them into a fixed vocabulary.
// It needs no vocabulary file, so snapshots only carry its config.
type HashTokenizer struct {
	cfg Config
}

func New(cfg Config) (*HashTokenizer, error) {
	if cfg.VocabSize <= reservedIDs {
		return nil, fmt.Errorf("%w: vocab_size must be greater than %d, got %d", appErr.ErrInvalidInput, reservedIDs, cfg.VocabSize)
	}
	if cfg.Type == "" {
		cfg.Type = "hash"
	}
	if cfg.Type != "hash" {
		return nil, fmt.Errorf("%w: unsupported tokenizer type: %s", appErr.ErrInvalidInput, cfg.Type)
	}
	return &HashTokenizer{cfg: cfg}, nil
}

func (t *HashTokenizer) VocabSize() int {
	return t.cfg.VocabSize
}

func (t *HashTokenizer) Config() Config {
	return t.cfg
}

func (t *HashTokenizer) Encode(text string, addSpecialTokens bool) (Encoding, error) {
	if strings.TrimSpace(text) == "" {
		return Encoding{}, fmt.Errorf("%w: text is empty", appErr.ErrTokenization)
	}
	words := t.split(text)
	ids := make([]int, 0, len(words)+2)
	if addSpecialTokens {
		ids = append(ids, ClsID)
	}
	for _, w := range words {
		ids = append(ids, t.wordID(w))
	}
	if len(words) == 0 {
		// punctuation only
		ids = append(ids, UnkID)
	}
	if addSpecialTokens {
		ids = append(ids, SepID)
	}
	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return Encoding{IDs: ids, AttentionMask: mask}, nil
}

func (t *HashTokenizer) EncodeBatch(texts []string, addSpecialTokens bool) ([]Encoding, error) {
	out := make([]Encoding, 0, len(texts))
	for i, text := range texts {
		enc, err := t.Encode(text, addSpecialTokens)
		if err != nil {
			return nil, fmt.Errorf("text at index %d: %w", i, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

func (t *HashTokenizer) split(text string) []string {
	if t.cfg.Lowercase {
		text = strings.ToLower(text)
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func (t *HashTokenizer) wordID(word string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return reservedIDs + int(h.Sum32()%uint32(t.cfg.VocabSize-reservedIDs))
}

// Pad turns encodings into rectangular id and mask arrays. The sequence length
// is min(longest encoding, maxLength); longer encodings are truncated, keeping
// a trailing SEP token when present.
func Pad(encodings []Encoding, maxLength int) ([][]int, [][]int) {
	seqLen := 0
	for _, enc := range encodings {
		if enc.Len() > seqLen {
			seqLen = enc.Len()
		}
	}
	if maxLength > 0 && seqLen > maxLength {
		seqLen = maxLength
	}
	ids := make([][]int, len(encodings))
	masks := make([][]int, len(encodings))
	for i, enc := range encodings {
		rowIDs := make([]int, seqLen)
		rowMask := make([]int, seqLen)
		n := copy(rowIDs, enc.IDs)
		copy(rowMask, enc.AttentionMask)
		if enc.Len() > seqLen && seqLen > 0 && enc.IDs[enc.Len()-1] == SepID {
			rowIDs[seqLen-1] = SepID
		}
		for j := n; j < seqLen; j++ {
			rowIDs[j] = PadID
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks
}

func SaveConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokenizer config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read tokenizer config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode tokenizer config: %w", err)
	}
	return cfg, nil
}
