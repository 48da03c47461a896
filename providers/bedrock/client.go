package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"medseal/config"
)

// ErrNoContent signalisiert eine Antwort ohne verwertbaren Text.
var ErrNoContent = errors.New("bedrock response contained no text content")

// Client kapselt die Bedrock-Runtime für die Textgenerierung.
type Client struct {
	Config  *config.Config
	Logger  *zap.Logger
	runtime *bedrockruntime.Client
}

// NewClient erstellt einen Bedrock-Client für die konfigurierte Region.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		Config:  cfg,
		Logger:  logger,
		runtime: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

// Generate sendet einen Prompt an das konfigurierte Modell und gibt den
// generierten Text zurück.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload, err := json.Marshal(novaRequest{
		SchemaVersion: "messages",
		Messages: []novaMessage{{
			Role:    "user",
			Content: []contentSpan{{Text: prompt}},
		}},
		InferenceConfig: inferenceConfig{
			MaxNewTokens:  maxTokens,
			Temperature:   0.7,
			TopP:          0.9,
			StopSequences: []string{},
		},
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.Config.BedrockModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke failed: %w", err)
	}

	c.Logger.Debug("Bedrock-Aufruf abgeschlossen",
		zap.String("model", c.Config.BedrockModelID),
		zap.Duration("latency", time.Since(start)))

	return parseModelOutput(out.Body)
}

// parseModelOutput liest den generierten Text aus der Modellantwort. Das
// Nova-Message-Format ist primär, das flache results/outputText-Format
// wird als Fallback akzeptiert.
func parseModelOutput(body []byte) (string, error) {
	var nova novaResponse
	if err := json.Unmarshal(body, &nova); err == nil {
		if content := nova.Output.Message.Content; len(content) > 0 && content[0].Text != "" {
			return content[0].Text, nil
		}
	}

	var titan titanResponse
	if err := json.Unmarshal(body, &titan); err == nil {
		if len(titan.Results) > 0 && titan.Results[0].OutputText != "" {
			return titan.Results[0].OutputText, nil
		}
	}

	return "", ErrNoContent
}
