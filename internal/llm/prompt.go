package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
)

// BuildPrompt renders the categorization prompt for tx.
func BuildPrompt(tx model.NormalizedTransaction, categories *model.Taxonomy) string {
	var b strings.Builder

	b.WriteString("Categorize this business bank transaction.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "- Description: %s\n", tx.Description)
	if tx.MerchantName != "" {
		fmt.Fprintf(&b, "- Merchant: %s\n", tx.MerchantName)
	}
	if tx.MCC != "" {
		fmt.Fprintf(&b, "- MCC: %s\n", tx.MCC)
	}
	fmt.Fprintf(&b, "- Amount (cents): %s %s\n", tx.AmountCents, tx.Currency)
	if !tx.Date.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", tx.Date.Format("2006-01-02"))
	}
	b.WriteString("Negative amounts are money leaving the account.\n\n")

	b.WriteString("Categories (slug: name [type]):\n")
	for _, c := range categories.All() {
		fmt.Fprintf(&b, "- %s: %s [%s]", c.Slug, c.Name, c.Type)
		if len(c.AttributeSchema) > 0 {
			keys := make([]string, 0, len(c.AttributeSchema))
			for k := range c.AttributeSchema {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&b, " attributes: %s", strings.Join(keys, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Choose exactly one slug from the list above.\n")
	b.WriteString("- Refunds are never revenue.\n")
	b.WriteString("- Payment processor deposits and payouts are clearing, not revenue.\n")
	b.WriteString("- Confidence is a number between 0 and 1.\n\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"category": "<slug>", "confidence": 0.0, "reasoning": "<one sentence>", "attributes": {}}`)
	b.WriteString("\n")

	return b.String()
}
