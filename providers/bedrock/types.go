// Package bedrock enthält den Client für die Bedrock-Runtime (Textgenerierung).
package bedrock

// novaRequest is the InvokeModel payload for the Nova message schema: a
// role-tagged message list plus the inference configuration.
type novaRequest struct {
	SchemaVersion   string          `json:"schemaVersion"`
	Messages        []novaMessage   `json:"messages"`
	InferenceConfig inferenceConfig `json:"inferenceConfig"`
}

type novaMessage struct {
	Role    string        `json:"role"`
	Content []contentSpan `json:"content"`
}

type contentSpan struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxNewTokens  int      `json:"max_new_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	StopSequences []string `json:"stopSequences"`
}

// novaResponse is the primary answer shape (output.message.content[0].text).
type novaResponse struct {
	Output struct {
		Message struct {
			Content []contentSpan `json:"content"`
		} `json:"message"`
	} `json:"output"`
}

// titanResponse is the alternate flat answer shape some text models return.
type titanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}
