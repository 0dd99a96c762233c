package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/souqbot/server/internal/bot/conversation"
	"github.com/souqbot/server/internal/bot/manager"
	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/negotiation"
	"github.com/souqbot/server/internal/bot/queue"
	"github.com/souqbot/server/internal/bot/transport"
	"github.com/souqbot/server/internal/bot/worker"
	"github.com/souqbot/server/internal/brain"
	"github.com/souqbot/server/internal/catalog"
	"github.com/souqbot/server/internal/core"
	logx "github.com/souqbot/server/pkg/logger"
	pkgredis "github.com/souqbot/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the orchestrator demo,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	HistoryTTL string `envconfig:"CONVERSATION_TTL" default:"24h"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Orchestrator configs
	Dispatch    model.DispatchConfig
	Negotiation model.NegotiationConfig
	Response    model.BrainConfig
}

func main() {
	fmt.Println("Starting sales bot orchestrator demo...")
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	// The transcript mirror is best effort; the demo runs without Redis.
	var history *conversation.HistoryRepo
	if rdb, err := envCfg.Redis.New(); err != nil {
		log.Printf("Warning: Redis unavailable, transcript mirroring disabled: %v", err)
	} else {
		defer rdb.Close()
		ttl, perr := time.ParseDuration(envCfg.HistoryTTL)
		if perr != nil {
			log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.HistoryTTL, perr)
		}
		history = conversation.NewHistoryRepo(rdb, ttl)
		fmt.Println("Connected to Redis successfully")
	}

	cat := catalog.NewInMemory()
	cat.Load([]model.Product{
		{ID: "lamp-brass", Name: "Brass floor lamp", Category: "lighting", Price: 25000, Description: "classic brass finish, warm light", Stock: 4},
		{ID: "chandelier-crystal", Name: "Crystal chandelier", Category: "lighting", Price: 120000, Description: "eight arm chandelier", Stock: 1},
		{ID: "lamp-desk", Name: "Desk lamp", Category: "lighting", Price: 9000, Description: "adjustable arm", Stock: 10},
	})

	engine := negotiation.NewEngine(negotiation.Config{
		DiscountSteps:      envCfg.Negotiation.DiscountSteps,
		PriceStep:          envCfg.Negotiation.PriceStep,
		MaxDiscountPercent: envCfg.Negotiation.MaxDiscountPercent,
	})

	proc, err := brain.New(ctx, brain.Config{
		APIKey:   envCfg.APIKey,
		BaseURL:  envCfg.BaseURL,
		Response: envCfg.Response,
	}, cat, engine)
	if err != nil {
		log.Fatalf("Failed to build processing engine: %v", err)
	}

	net := transport.NewLocal()
	net.RegisterAccount("store-main", "local-token")

	dispatch := queue.NewDispatch(envCfg.Dispatch.QueueCapacity)
	store := conversation.NewStore()
	mgr := manager.NewManager(net, dispatch, store, history)

	pool := worker.NewPool(worker.PoolConfig{
		Dispatch:      dispatch,
		Store:         store,
		History:       history,
		Processor:     proc,
		Hub:           mgr,
		Workers:       envCfg.Dispatch.Workers,
		FallbackReply: envCfg.Dispatch.FallbackReply,
	})
	pool.Start(ctx)
	defer pool.Stop()
	defer mgr.Close(ctx)

	err = mgr.Start(ctx, "demo-tenant",
		model.Credentials{AccountID: "store-main", Token: "local-token"},
		model.TenantConfig{
			TenantName:         "Baghdad Lighting",
			City:               "Baghdad",
			MaxDiscountPercent: envCfg.Negotiation.MaxDiscountPercent,
			ShippingByRegion:   map[string]int{"baghdad": 5000, "basra": 8000, "erbil": 10000},
			PersonaTone:        "friendly and a little playful",
		})
	if err != nil {
		log.Fatalf("Failed to start tenant session: %v", err)
	}

	script := []struct {
		description string
		message     string
	}{
		{"Greeting and product inquiry", "hi! how much is the brass floor lamp?"},
		{"First haggle without a number", "that is too expensive, any discount?"},
		{"Named offer below the floor", "can you do 20000?"},
		{"Offer inside the acceptable band", "ok, 22000 and we have a deal"},
	}

	seen := 0
	for i, step := range script {
		fmt.Printf("\nStep %d: %s\n", i+1, step.description)
		fmt.Printf("Customer: %q\n", step.message)

		err := net.Inject(ctx, "store-main", model.IncomingEvent{
			SenderID:   "customer-1",
			SenderName: "Ali",
			ChatTarget: "customer-1-chat",
			Text:       step.message,
			Private:    true,
		})
		if err != nil {
			log.Fatalf("Failed to inject message for step %d: %v", i+1, err)
		}

		reply, ok := waitForReply(net, "store-main", seen, 30*time.Second)
		if !ok {
			log.Fatalf("No reply for step %d", i+1)
		}
		seen++
		fmt.Printf("Bot: %s\n", reply.Text)
	}

	fmt.Println("\nDemo conversation completed.")
}

// waitForReply polls the local transport until a delivery past index seen
// shows up.
func waitForReply(net *transport.Local, accountID string, seen int, timeout time.Duration) (transport.Delivery, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if out := net.Deliveries(accountID); len(out) > seen {
			return out[seen], true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return transport.Delivery{}, false
}
