// Package translate memoizes UI-string translations for one target language
// at a time. A source string is translated at most once per language scope;
// switching languages discards the scope entirely because entries are keyed
// by exact source text, not by semantic id.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Cache holds original -> translated mappings for the current target
// language. Safe for concurrent use; overlapping EnsureTranslated calls each
// operate on their own snapshot of uncached texts, so one batch's index
// bookkeeping can never bleed into another's.
type Cache struct {
	baseURL        string
	sourceLanguage string
	client         *http.Client

	mu       sync.Mutex
	language string
	entries  map[string]string
}

// NewCache creates a cache targeting the given translation endpoint.
// sourceLanguage is the language the UI strings are authored in; requests for
// it short-circuit without a network call.
func NewCache(baseURL, sourceLanguage string) *Cache {
	return &Cache{
		baseURL:        baseURL,
		sourceLanguage: sourceLanguage,
		client:         &http.Client{Timeout: 15 * time.Second},
		language:       sourceLanguage,
		entries:        make(map[string]string),
	}
}

// Language returns the current target language.
func (c *Cache) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// SetLanguage switches the target language. Changing language starts a fresh
// scope: all cached entries are discarded. Setting the same language again
// keeps the cache intact.
func (c *Cache) SetLanguage(language string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if language == c.language {
		return
	}
	c.language = language
	c.entries = make(map[string]string)
}

// EnsureTranslated guarantees that every non-empty text in texts has a cache
// entry for the current language, issuing at most one batched request for the
// not-yet-cached subset. Callers re-read results through Lookup.
func (c *Cache) EnsureTranslated(ctx context.Context, texts []string) error {
	c.mu.Lock()
	language := c.language
	if language == c.sourceLanguage {
		c.mu.Unlock()
		return nil
	}

	// Snapshot the uncached subset in input order, deduplicated. The batch
	// slice belongs to this call alone.
	seen := make(map[string]bool)
	var batch []string
	for _, text := range texts {
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		if _, ok := c.entries[text]; !ok {
			batch = append(batch, text)
		}
	}
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	translations, err := c.requestBatch(ctx, batch, language)
	if err != nil {
		return err
	}
	if len(translations) != len(batch) {
		return fmt.Errorf("translation response has %d entries for %d texts", len(translations), len(batch))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The language may have changed while the request was in flight; results
	// for a stale scope are discarded.
	if c.language != language {
		return nil
	}
	for i, original := range batch {
		// Entries are never overwritten within a scope.
		if _, ok := c.entries[original]; !ok {
			c.entries[original] = translations[i]
		}
	}
	return nil
}

// Lookup returns the cached translation for text, or text itself on a miss.
// Falling back to the source string keeps rendering working when translation
// fails.
func (c *Cache) Lookup(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if translated, ok := c.entries[text]; ok {
		return translated
	}
	return text
}

// LookupAll maps Lookup over a slice, preserving order.
func (c *Cache) LookupAll(texts []string) []string {
	result := make([]string, len(texts))
	for i, text := range texts {
		result[i] = c.Lookup(text)
	}
	return result
}

type translateRequest struct {
	Texts          []string `json:"texts"`
	TargetLanguage string   `json:"target_language"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
}

func (c *Cache) requestBatch(ctx context.Context, texts []string, language string) ([]string, error) {
	payload, err := json.Marshal(translateRequest{
		Texts:          texts,
		TargetLanguage: language,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation endpoint returned status %d", resp.StatusCode)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Translations, nil
}
