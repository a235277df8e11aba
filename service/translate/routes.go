package translate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
)

// TranslateHandler proxies batched translation requests to the configured
// upstream translator. Responses are positionally aligned with the request:
// translations[i] is the translation of texts[i].
type TranslateHandler struct {
	endpoint string
	key      string
	region   string
	client   *http.Client
}

func NewTranslateHandler() *TranslateHandler {
	return &TranslateHandler{
		endpoint: os.Getenv("TRANSLATOR_ENDPOINT"),
		key:      os.Getenv("TRANSLATOR_KEY"),
		region:   os.Getenv("TRANSLATOR_REGION"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// NewTranslateHandlerWithUpstream is used by tests to point the proxy at a
// mock translator.
func NewTranslateHandlerWithUpstream(endpoint, key, region string) *TranslateHandler {
	return &TranslateHandler{
		endpoint: endpoint,
		key:      key,
		region:   region,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *TranslateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/translate", h.Translate).Methods("POST")
}

type translateRequest struct {
	Texts          []string `json:"texts"`
	TargetLanguage string   `json:"target_language"`
}

type upstreamItem struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 {
		http.Error(w, "texts is required", http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == "" {
		http.Error(w, "target_language is required", http.StatusBadRequest)
		return
	}

	translations, err := h.translateBatch(req.Texts, req.TargetLanguage)
	if err != nil {
		http.Error(w, fmt.Sprintf("Translation failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"translations": translations,
	})
}

func (h *TranslateHandler) translateBatch(texts []string, targetLanguage string) ([]string, error) {
	body := make([]map[string]string, 0, len(texts))
	for _, text := range texts {
		body = append(body, map[string]string{"Text": text})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/translate?api-version=3.0&to=%s", h.endpoint, targetLanguage)
	upstreamReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("Ocp-Apim-Subscription-Key", h.key)
	upstreamReq.Header.Set("Ocp-Apim-Subscription-Region", h.region)

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var items []upstreamItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	if len(items) != len(texts) {
		return nil, fmt.Errorf("upstream returned %d items for %d texts", len(items), len(texts))
	}

	translations := make([]string, len(texts))
	for i, item := range items {
		if len(item.Translations) == 0 {
			// keep alignment: fall back to the source text
			translations[i] = texts[i]
			continue
		}
		translations[i] = item.Translations[0].Text
	}
	return translations, nil
}
