package channel

import "strings"

const (
	// calculateCommand is the explicit command on every transport.
	calculateCommand = "calculate"
	calculateAlias   = "calc"

	resultTitle = "Calculation Result"
)

// resultBlock renders an answered calculation as a code block with the
// expression above its result.
func resultBlock(expression, result string) string {
	return "```\n" + expression + "\n= " + result + "\n```"
}

// isCalculateCommand matches the command name without its leading slash.
func isCalculateCommand(name string) bool {
	name = strings.TrimPrefix(strings.ToLower(name), "/")
	return name == calculateCommand || name == calculateAlias
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
