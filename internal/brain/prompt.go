package brain

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/souqbot/server/internal/bot/model"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// promptVars feeds the system prompt template.
type promptVars struct {
	BusinessName   string
	City           string
	PersonaTone    string
	CustomerName   string
	ProductSummary string
	ShippingFees   string
	Instruction    string
}

// renderSystemPrompt renders the sales system prompt via the Eino prompt
// component (Go template), which also emits prompt callbacks.
func renderSystemPrompt(ctx context.Context, tenant model.TenantConfig, customerName, productSummary, instruction string) (string, error) {
	vars := promptVars{
		BusinessName:   tenant.TenantName,
		City:           tenant.City,
		PersonaTone:    tenant.PersonaTone,
		CustomerName:   customerName,
		ProductSummary: productSummary,
		ShippingFees:   formatShippingFees(tenant.ShippingByRegion),
		Instruction:    instruction,
	}
	if vars.BusinessName == "" {
		vars.BusinessName = "the store"
	}
	if vars.PersonaTone == "" {
		vars.PersonaTone = "warm and helpful"
	}
	if vars.CustomerName == "" {
		vars.CustomerName = "the customer"
	}
	if vars.ProductSummary == "" {
		vars.ProductSummary = "(no products loaded)"
	}
	if vars.ShippingFees == "" {
		vars.ShippingFees = "(ask the customer for their city)"
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"BusinessName":   vars.BusinessName,
		"City":           vars.City,
		"PersonaTone":    vars.PersonaTone,
		"CustomerName":   vars.CustomerName,
		"ProductSummary": vars.ProductSummary,
		"ShippingFees":   vars.ShippingFees,
		"Instruction":    vars.Instruction,
	})
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

func formatShippingFees(fees map[string]int) string {
	if len(fees) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fees))
	for region, fee := range fees {
		parts = append(parts, fmt.Sprintf("- %s: %d", region, fee))
	}
	// Deterministic order keeps prompts stable across calls.
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}
