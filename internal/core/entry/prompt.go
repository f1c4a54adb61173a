package entry

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildSystemPrompt は分量規則からパーサー用のシステムプロンプトを構築する
func BuildSystemPrompt(rules Rules) string {
	var sb strings.Builder

	sb.WriteString("You are a nutrition tracking assistant that converts natural language meal descriptions into structured JSON data. ")
	sb.WriteString("Parse the user's description of what they ate and output the food items with estimated portion sizes in grams.\n\n")

	sb.WriteString("## Output Format\n")
	sb.WriteString("Return ONLY a JSON object of the form {\"foods\": [...]} with no markdown and no explanation. Each item has:\n")
	sb.WriteString("- `food`: string (singular form, lowercase, raw ingredient name)\n")
	sb.WriteString("- `portion_size_gms`: number (grams only, no unit)\n\n")

	sb.WriteString("## Food Naming\n")
	sb.WriteString("- Use singular form: \"oranges\" -> \"orange\"\n")
	sb.WriteString("- Lowercase everything\n")
	sb.WriteString("- Exclude cooking methods: \"grilled salmon\" -> \"salmon\"\n")
	sb.WriteString("- Break compound dishes into raw ingredients\n\n")

	sb.WriteString("## Common Quantities (grams)\n")
	for _, p := range rules.Portions {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", p.Label, formatGrams(p.Grams)))
	}
	sb.WriteString("\nIf the user gives a count, multiply the standard size: \"3 oranges\" -> 3 x 150 = 450.\n")
	sb.WriteString("Liquids use 1ml = 1g. Always assume RAW weight unless the user states a cooked quantity.\n\n")

	sb.WriteString("## Unclear Quantities\n")
	for _, p := range rules.VagueQuantities {
		sb.WriteString(fmt.Sprintf("- \"%s\" -> %s\n", p.Label, formatGrams(p.Grams)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Compound Dishes\n")
	for _, d := range rules.Dishes {
		parts := make([]string, len(d.Ingredients))
		for i, ing := range d.Ingredients {
			parts[i] = fmt.Sprintf("%s %s", ing.Food, formatGrams(ing.PortionGrams))
		}
		sb.WriteString(fmt.Sprintf("- \"%s\" -> %s\n", d.Dish, strings.Join(parts, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Edge Cases\n")
	sb.WriteString("- Drinks with sugar: separate the drink and the sugar\n")
	sb.WriteString("- Condiments are always included (ketchup, mayo, dressing)\n")
	sb.WriteString("- A vague mention like \"a meal\" or \"a snack\" returns {\"foods\": []}\n")
	sb.WriteString("- Completely unparseable input returns {\"foods\": []}\n\n")

	sb.WriteString("## Example\n")
	sb.WriteString("Input: \"2 eggs, toast with butter, and orange juice\"\n")
	sb.WriteString(`Output: {"foods": [{"food": "egg", "portion_size_gms": 100}, {"food": "bread", "portion_size_gms": 60}, {"food": "butter", "portion_size_gms": 10}, {"food": "orange juice", "portion_size_gms": 240}]}`)
	sb.WriteString("\n")

	return sb.String()
}

func formatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}
