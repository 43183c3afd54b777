package generation

import (
	"encoding/json"
	"strings"
)

// family is one class of generation backends sharing a request/response
// schema: an id-prefix match, a request encoder, and an ordered list of
// response extractors tried in sequence. Response shape varies across
// provider minor versions, so extraction probes several plausible fields
// before giving up.
//
// An extractor reports ok when the field is structurally present, even if
// its value is empty: a present-but-empty answer is an EmptyGeneration
// condition, not a malformed response.
type family struct {
	name       string
	prefix     string
	encode     func(prompt string, p Params) ([]byte, error)
	extractors []func(body []byte) (string, bool)
}

// extract runs the family's extractors in order; the first structural hit
// wins.
func (f *family) extract(body []byte) (string, bool) {
	for _, ex := range f.extractors {
		if text, ok := ex(body); ok {
			return text, true
		}
	}
	return "", false
}

func familyFor(modelID string) (*family, bool) {
	for i := range families {
		if strings.HasPrefix(modelID, families[i].prefix) {
			return &families[i], true
		}
	}
	return nil, false
}

// hasKey reports whether body is a JSON object carrying the given key.
func hasKey(body []byte, key string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) != nil {
		return nil, false
	}
	raw, ok := obj[key]
	return raw, ok
}

// Anthropic messages API shapes.

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature,omitempty"`
	TopP             float64            `json:"top_p,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Titan text shapes.

type titanTextRequest struct {
	InputText            string          `json:"inputText"`
	TextGenerationConfig titanTextConfig `json:"textGenerationConfig"`
}

type titanTextConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

// Llama shapes.

type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

var families = []family{
	{
		name:   "anthropic",
		prefix: "anthropic.",
		encode: func(prompt string, p Params) ([]byte, error) {
			return json.Marshal(anthropicRequest{
				AnthropicVersion: "bedrock-2023-05-31",
				MaxTokens:        p.MaxTokens,
				Temperature:      p.Temperature,
				TopP:             p.TopP,
				Messages: []anthropicMessage{{
					Role:    "user",
					Content: []anthropicContent{{Type: "text", Text: prompt}},
				}},
			})
		},
		extractors: []func([]byte) (string, bool){
			// Messages API: content[0].text.
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "content")
				if !ok {
					return "", false
				}
				var content []struct {
					Text string `json:"text"`
				}
				if json.Unmarshal(raw, &content) != nil || len(content) == 0 {
					return "", false
				}
				return content[0].Text, true
			},
			// Legacy completions shape.
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "completion")
				if !ok {
					return "", false
				}
				var completion string
				if json.Unmarshal(raw, &completion) != nil {
					return "", false
				}
				return completion, true
			},
		},
	},
	{
		name:   "titan",
		prefix: "amazon.",
		encode: func(prompt string, p Params) ([]byte, error) {
			return json.Marshal(titanTextRequest{
				InputText: prompt,
				TextGenerationConfig: titanTextConfig{
					MaxTokenCount: p.MaxTokens,
					Temperature:   p.Temperature,
					TopP:          p.TopP,
				},
			})
		},
		extractors: []func([]byte) (string, bool){
			// results[0].outputText.
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "results")
				if !ok {
					return "", false
				}
				var results []struct {
					OutputText string `json:"outputText"`
				}
				if json.Unmarshal(raw, &results) != nil || len(results) == 0 {
					return "", false
				}
				return results[0].OutputText, true
			},
			// Some revisions flatten the field to the top level.
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "outputText")
				if !ok {
					return "", false
				}
				var text string
				if json.Unmarshal(raw, &text) != nil {
					return "", false
				}
				return text, true
			},
		},
	},
	{
		name:   "llama",
		prefix: "meta.",
		encode: func(prompt string, p Params) ([]byte, error) {
			return json.Marshal(llamaRequest{
				Prompt:      prompt,
				MaxGenLen:   p.MaxTokens,
				Temperature: p.Temperature,
				TopP:        p.TopP,
			})
		},
		extractors: []func([]byte) (string, bool){
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "generation")
				if !ok {
					return "", false
				}
				var text string
				if json.Unmarshal(raw, &text) != nil {
					return "", false
				}
				return text, true
			},
			func(body []byte) (string, bool) {
				raw, ok := hasKey(body, "generations")
				if !ok {
					return "", false
				}
				var generations []struct {
					Text string `json:"text"`
				}
				if json.Unmarshal(raw, &generations) != nil || len(generations) == 0 {
					return "", false
				}
				return generations[0].Text, true
			},
		},
	},
}
