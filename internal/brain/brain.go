package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/negotiation"
	errx "github.com/souqbot/server/internal/core/error"
	logx "github.com/souqbot/server/pkg/logger"
)

// Inventory is the catalog surface the brain consumes: contract lookups plus
// a full listing for the prompt summary.
type Inventory interface {
	model.Catalog
	All() []model.Product
}

// Config holds everything needed to build a Gemini-backed brain.
type Config struct {
	APIKey   string
	BaseURL  string
	Response model.BrainConfig
}

// Brain turns one customer message plus conversation context into a reply.
// Catalog matching and the haggling engine run before the model call; the
// model only phrases the answer and never decides prices.
type Brain struct {
	chat      einomodel.BaseChatModel
	modelName string
	maxTurns  int
	catalog   Inventory
	engine    *negotiation.Engine
}

// New builds a Brain backed by a Gemini chat model.
func New(ctx context.Context, cfg Config, catalog Inventory, engine *negotiation.Engine) (*Brain, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chat, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Response.Model,
		Temperature: &cfg.Response.Temperature,
		MaxTokens:   &cfg.Response.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return NewWithModel(chat, cfg.Response, catalog, engine), nil
}

// NewWithModel wires an already-built chat model, which is how tests inject a
// scripted fake.
func NewWithModel(chat einomodel.BaseChatModel, cfg model.BrainConfig, catalog Inventory, engine *negotiation.Engine) *Brain {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if engine == nil {
		engine = negotiation.NewEngine(negotiation.Config{})
	}
	return &Brain{
		chat:      chat,
		modelName: cfg.Model,
		maxTurns:  cfg.MaxTurns,
		catalog:   catalog,
		engine:    engine,
	}
}

// Process implements model.Processor.
func (b *Brain) Process(ctx context.Context, req model.ProcessRequest) (model.ProcessResult, error) {
	res := model.ProcessResult{
		Negotiation:      req.Negotiation,
		CurrentProductID: req.CurrentProductID,
		Flags:            map[string]string{},
	}

	b.detectProduct(ctx, req.Message, &res)

	instruction := b.consultNegotiation(ctx, req, &res)

	summary := b.productSummary()
	system, err := renderSystemPrompt(ctx, req.Tenant, req.CustomerName, summary, instruction)
	if err != nil {
		return model.ProcessResult{}, err
	}

	msgs := make([]*schema.Message, 0, b.maxTurns+2)
	msgs = append(msgs, schema.SystemMessage(system))
	for _, m := range tailTurns(req.History, b.maxTurns) {
		switch m.Role {
		case model.RoleAgent:
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Text))
		}
	}
	msgs = append(msgs, schema.UserMessage(req.Message))

	out, err := b.chat.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("model", b.modelName).Msg("Response generation failed")
		return model.ProcessResult{}, errx.WrapProcessing(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return model.ProcessResult{}, errx.WrapProcessing(fmt.Errorf("empty model response"))
	}
	b.logUsage(out)

	res.ReplyText = strings.TrimSpace(out.Content)
	if instruction != "" {
		res.Confidence = 0.95
	} else {
		res.Confidence = 0.85
	}
	return res, nil
}

// detectProduct matches the message against the catalog and moves the
// conversation to the best hit. Switching products abandons any haggle over
// the previous one.
func (b *Brain) detectProduct(ctx context.Context, message string, res *model.ProcessResult) {
	hits := b.catalog.Search(ctx, message, 1)
	if len(hits) == 0 {
		return
	}
	p := hits[0]
	if p.ID == res.CurrentProductID {
		return
	}
	res.CurrentProductID = p.ID
	res.Negotiation = nil
	res.Flags["product_matched"] = p.ID
}

// consultNegotiation runs the haggling engine when the message reads as a
// price attempt and returns the pricing directive for the prompt, or "".
func (b *Brain) consultNegotiation(ctx context.Context, req model.ProcessRequest, res *model.ProcessResult) string {
	offer, hasOffer := extractOffer(req.Message)
	if !hasOffer && !wantsDiscount(req.Message) {
		return ""
	}
	if res.CurrentProductID == "" {
		return ""
	}

	st := res.Negotiation
	if st == nil || st.ProductID != res.CurrentProductID {
		p, ok := b.catalog.Get(ctx, res.CurrentProductID)
		if !ok {
			return ""
		}
		fresh := b.engine.Start(p.ID, p.Price, req.Tenant.MaxDiscountPercent)
		st = &fresh
		res.Negotiation = st
	}

	var offerPtr *float64
	if hasOffer {
		offerPtr = &offer
	}
	outcome, price := b.engine.ProcessOffer(st, offerPtr)
	res.Flags["negotiation_outcome"] = string(outcome)
	if outcome == negotiation.OutcomeAcceptCustomerOffer {
		res.SuggestedActions = append(res.SuggestedActions, "close_deal")
	}
	return b.engine.Instruction(outcome, price, st.OriginalPrice)
}

func (b *Brain) productSummary() string {
	products := b.catalog.All()
	if len(products) == 0 {
		return ""
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, p.Summary())
	}
	return strings.Join(lines, "\n")
}

func (b *Brain) logUsage(out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	_, _, total := computeCost(usage, resolvePricing(b.modelName))
	logx.Debug().
		Str("model", b.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("cost_usd", total).
		Msg("Response generated")
}

// tailTurns returns the last n messages of the transcript.
func tailTurns(history []model.ChatMessage, n int) []model.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

var _ model.Processor = (*Brain)(nil)
