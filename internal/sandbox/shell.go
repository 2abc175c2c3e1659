package sandbox

import (
	"fmt"
	"strings"
)

// ShellQuote quotes a slice of strings for shell execution.
func ShellQuote(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, ShellQuoteSingle(arg))
	}
	return strings.Join(quoted, " ")
}

// ShellQuoteSingle quotes a single string for shell execution.
func ShellQuoteSingle(s string) string {
	if needsQuoting(s) {
		return fmt.Sprintf("'%s'", strings.ReplaceAll(s, "'", "'\\''"))
	}
	return s
}

// needsQuoting returns true if a string contains shell metacharacters.
func needsQuoting(s string) bool {
	for _, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '"' || c == '\'' ||
			c == '\\' || c == '$' || c == '`' || c == '!' || c == '*' ||
			c == '?' || c == '[' || c == ']' || c == '(' || c == ')' ||
			c == '{' || c == '}' || c == '<' || c == '>' || c == '|' ||
			c == '&' || c == ';' || c == '#' {
			return true
		}
	}
	return len(s) == 0
}
