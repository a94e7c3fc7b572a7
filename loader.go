package gotiktoken

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gotiktoken/gotiktoken/tokenizer"
)

const (
	defaultBaseURL = "https://openaipublic.blob.core.windows.net/encodings/"
	envEncBase     = "TIKTOKEN_ENCODINGS_BASE"
	envCacheDir    = "TIKTOKEN_GO_CACHE_DIR"
	envOffline     = "TIKTOKEN_OFFLINE"
	envHTTPTimeout = "TIKTOKEN_HTTP_TIMEOUT" // seconds
)

// gpt2EncoderURL points at GPT-2's vocabulary in its original encoder.json
// shape rather than tiktoken's `.tiktoken` line format (spec SPEC_FULL.md
// §C.4). encoder.json alone is sufficient: its token ids are assigned in
// merge order, the same rank semantics a `.tiktoken` file encodes directly,
// so vocab.bpe's separate merge-priority list is redundant for this engine.
const gpt2EncoderURL = "https://openaipublic.blob.core.windows.net/gpt-2/encodings/main/encoder.json"

// Loader resolves and caches vocabulary files, verifying a published
// SHA-256 digest when one is pinned in the registry (spec §6 "Vocabulary
// cache"). Loading is the one ambient concern worth logging; the core
// encode/decode path never touches a logger (spec §9 "Async shape").
type Loader struct {
	baseURL     string
	cacheDir    string
	offline     bool
	httpTimeout time.Duration
	logger      *slog.Logger
}

// LoaderOption configures a Loader, overriding its environment-derived
// defaults. While TIKTOKEN_ENCODINGS_BASE is set, vocabulary files are read
// from that local directory and the base URL, cache directory and offline
// settings have no effect.
type LoaderOption func(*Loader)

// WithBaseURL overrides the base URL vocabulary files are downloaded from.
func WithBaseURL(url string) LoaderOption {
	return func(l *Loader) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		l.baseURL = url
	}
}

// WithCacheDir overrides the on-disk cache directory.
func WithCacheDir(dir string) LoaderOption { return func(l *Loader) { l.cacheDir = dir } }

// WithOffline disallows network downloads; a cache miss becomes an error.
func WithOffline(offline bool) LoaderOption { return func(l *Loader) { l.offline = offline } }

// WithHTTPTimeout bounds a single download attempt.
func WithHTTPTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.httpTimeout = d }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) LoaderOption { return func(l *Loader) { l.logger = logger } }

// NewLoader builds a Loader, defaulting every option to the same
// environment variables the reference CLI accepts.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		baseURL:     defaultBaseURL,
		offline:     os.Getenv(envOffline) == "1",
		httpTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}
	if b := os.Getenv(envEncBase); b != "" {
		l.baseURL = b
	}
	if d := os.Getenv(envCacheDir); d != "" {
		l.cacheDir = d
	}
	if v := os.Getenv(envHTTPTimeout); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			l.httpTimeout = time.Duration(s) * time.Second
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) resolveCacheDir() (string, error) {
	dir := l.cacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "gotiktoken-cache")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// LoadEncoding loads name's merge table and specials and builds an
// Encoding facade.
func (l *Loader) LoadEncoding(name Name) (*Encoding, error) {
	d, ok := registry[name]
	if !ok {
		return nil, &ErrUnsupportedEncoding{Model: string(name)}
	}
	var enc map[string]tokenizer.Rank
	var err error
	if name == GPT2 {
		enc, err = l.loadGPT2Vocab()
	} else {
		enc, err = l.loadTiktokenVocab(d.vocabFile, d.expectedSHA)
	}
	if err != nil {
		return nil, err
	}
	core, err := tokenizer.NewCore(enc, d.specials(), d.pattern)
	if err != nil {
		return nil, err
	}
	return newEncoding(string(name), core), nil
}

func (l *Loader) loadTiktokenVocab(filename, expectedSHA string) (map[string]tokenizer.Rank, error) {
	data, err := l.fetch(filename, l.baseURL+filename, expectedSHA)
	if err != nil {
		return nil, err
	}
	return tokenizer.ParseVocabulary(data)
}

// fetch resolves filename against the cache, downloading it from url on a
// miss (unless offline), and verifies a fresh download against expectedSHA
// when non-empty. Cache hits and files read from TIKTOKEN_ENCODINGS_BASE are
// not re-verified.
func (l *Loader) fetch(filename, url, expectedSHA string) ([]byte, error) {
	if b := os.Getenv(envEncBase); b != "" {
		// Treat the override as a local directory of pre-staged files.
		path := filepath.Join(b, filename)
		return os.ReadFile(path)
	}
	cacheDir, err := l.resolveCacheDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(cacheDir, filename)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if l.offline {
			return nil, fmt.Errorf("gotiktoken: %s missing from cache and offline mode is set", filename)
		}
		l.logger.Info("downloading vocabulary", "file", filename, "url", url)
		sum, derr := l.downloadToFile(url, path)
		if derr != nil {
			return nil, derr
		}
		if expectedSHA != "" && !strings.EqualFold(sum, expectedSHA) {
			_ = os.Remove(path)
			return nil, fmt.Errorf("gotiktoken: %s sha256 mismatch: got %s want %s", filename, sum, expectedSHA)
		}
	} else {
		l.logger.Debug("vocabulary cache hit", "file", filename)
	}
	return os.ReadFile(path)
}

func (l *Loader) downloadToFile(url, dest string) (string, error) {
	client := &http.Client{Timeout: l.httpTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gotiktoken: unexpected status %s fetching %s", resp.Status, url)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	mw := io.MultiWriter(f, h)
	if _, err := io.Copy(mw, resp.Body); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// gpt2Encoder mirrors the shape of GPT-2's encoder.json: a mapping from the
// "cursed" byte-to-unicode token string to its integer id.
type gpt2Encoder map[string]int

// loadGPT2Vocab parses GPT-2's encoder.json (vocab.bpe is not fetched) and
// re-keys it into the same raw-byte merge table shape every other encoding uses,
// so the core engine never has to special-case GPT-2 (spec SPEC_FULL.md
// §C.4).
func (l *Loader) loadGPT2Vocab() (map[string]tokenizer.Rank, error) {
	encJSON, err := l.fetch("gpt2-encoder.json", gpt2EncoderURL, "")
	if err != nil {
		return nil, err
	}

	var enc gpt2Encoder
	if err := json.Unmarshal(encJSON, &enc); err != nil {
		return nil, fmt.Errorf("gotiktoken: parse gpt2 encoder.json: %w", err)
	}

	byteDecoder := gpt2ByteDecoder()
	decodeToken := func(tok string) []byte {
		out := make([]byte, 0, len(tok))
		for _, r := range tok {
			out = append(out, byteDecoder[r])
		}
		return out
	}

	ranks := make(map[string]tokenizer.Rank, len(enc))
	for tok, id := range enc {
		ranks[string(decodeToken(tok))] = tokenizer.Rank(id)
	}
	return ranks, nil
}

// gpt2ByteDecoder inverts GPT-2's byte-to-printable-unicode mapping: every
// byte value maps to a unicode code point that is always a single
// printable, easily serialized character, so raw bytes can be round-tripped
// through JSON string keys. This is the "cursed byte encoding" GPT-2's
// original implementation uses (spec SPEC_FULL.md §C.4).
func gpt2ByteDecoder() map[rune]byte {
	bs := make([]int, 0, 256)
	for b := int('!'); b <= int('~'); b++ {
		bs = append(bs, b)
	}
	for b := int('¡'); b <= int('¬'); b++ {
		bs = append(bs, b)
	}
	for b := int('®'); b <= int('ÿ'); b++ {
		bs = append(bs, b)
	}
	cs := append([]int(nil), bs...)
	n := 0
	for b := 0; b < 256; b++ {
		found := false
		for _, x := range bs {
			if x == b {
				found = true
				break
			}
		}
		if !found {
			bs = append(bs, b)
			cs = append(cs, 256+n)
			n++
		}
	}
	m := make(map[rune]byte, len(bs))
	for i, b := range bs {
		m[rune(cs[i])] = byte(b)
	}
	return m
}
