package eino

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

// ErrAPIKeyMissing is returned on first use when the completion secret was
// never supplied.
var ErrAPIKeyMissing = errors.New("completion provider is not configured: set GEMINI_API_KEY")

// Config holds the LLM provider configuration.
type Config struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// Service wraps an eino chat model behind a single Generate call.
type Service struct {
	config    Config
	chatModel model.BaseChatModel
}

// NewService creates the completion service. A missing API key is not fatal
// here; Generate reports it when the service is first used.
func NewService(config Config) (*Service, error) {
	s := &Service{config: config}
	if config.APIKey == "" {
		return s, nil
	}
	if err := s.initializeChatModel(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	return s, nil
}

// NewServiceWithModel creates a service around a pre-configured chat model.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	return &Service{config: config, chatModel: chatModel}
}

func (s *Service) initializeChatModel() error {
	switch strings.ToLower(s.config.Provider) {
	case "", "gemini":
		return s.initializeGeminiModel()
	default:
		return fmt.Errorf("unsupported provider: %s. Supported: gemini", s.config.Provider)
	}
}

func (s *Service) initializeGeminiModel() error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	geminiModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  s.config.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini chat model: %w", err)
	}

	s.chatModel = geminiModel
	return nil
}

// Generate runs the chat model over the formatted messages and returns the
// raw completion message.
func (s *Service) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	if s.chatModel == nil {
		return nil, ErrAPIKeyMissing
	}
	return s.chatModel.Generate(ctx, messages)
}
