package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlock  = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")
	illegalAlias = regexp.MustCompile(`(?i)\s+AS\s+([a-z_]+\s*\([^)]*\))`)
)

// explanatory lines end the statement when a model keeps talking after it
var proseStarts = []string{"This ", "The ", "Since ", "Note:", "Explanation:"}

// ExtractSQL pulls the statement out of a model response. It understands
// "Final Answer:" markers, fenced code blocks, inline backticks, a leading
// "SQL:" label and trailing prose.
func ExtractSQL(response string) string {
	if idx := strings.LastIndex(response, "Final Answer:"); idx >= 0 {
		response = response[idx+len("Final Answer:"):]
	}
	if m := fencedBlock.FindStringSubmatch(response); m != nil {
		response = m[1]
	}
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```sql")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if upper := strings.ToUpper(response); strings.Contains(upper, "`SELECT") || strings.Contains(upper, "`WITH") {
		if start := strings.Index(response, "`"); start >= 0 {
			if end := strings.Index(response[start+1:], "`"); end >= 0 {
				response = response[start+1 : start+1+end]
			}
		}
	}

	if len(response) >= 4 && strings.EqualFold(response[:4], "SQL:") {
		response = strings.TrimSpace(response[4:])
	}

	lines := strings.Split(response, "\n")
	if len(lines) > 1 {
		first := strings.ToUpper(strings.TrimSpace(lines[0]))
		if strings.HasPrefix(first, "SELECT") || strings.HasPrefix(first, "WITH") {
			var kept []string
			for _, line := range lines {
				if isProse(strings.TrimSpace(line)) {
					break
				}
				kept = append(kept, line)
			}
			response = strings.Join(kept, "\n")
		}
	}
	return strings.TrimSpace(response)
}

func isProse(line string) bool {
	for _, p := range proseStarts {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// QuickCheck catches mistakes models often make that a parser reports
// poorly: function-call aliases such as "AS count(*)" and unbalanced
// parentheses.
func QuickCheck(sql string) error {
	if matches := illegalAlias.FindAllStringSubmatch(sql, -1); len(matches) > 0 {
		aliases := make([]string, 0, len(matches))
		for _, m := range matches {
			aliases = append(aliases, m[1])
		}
		return fmt.Errorf("illegal alias syntax %v: aliases cannot contain parentheses, use a simple name such as total_count", aliases)
	}

	depth := 0
	for i, ch := range sql {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unmatched closing parenthesis at position %d", i)
			}
		}
	}
	if depth > 0 {
		return fmt.Errorf("unmatched opening parenthesis: %d unclosed", depth)
	}
	return nil
}
