package logger

import (
	"fmt"
	"regexp"
)

var (
	passwordPattern = regexp.MustCompile(`(?i)(password\s*=\s*['"])([^'"]+)(['"])`)
	// embedding literals: "[0.12,0.5,...]" or "{0.1,0.2,...}" with more than 8 components
	vectorPattern = regexp.MustCompile(`[\[{]\s*-?\d+(?:\.\d+)?(?:e-?\d+)?(?:\s*,\s*-?\d+(?:\.\d+)?(?:e-?\d+)?){8,}\s*[\]}]`)
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:e-?\d+)?`)
)

const maxLoggedSQL = 2048

// sanitizeSQL masks credentials and collapses embedding literals so vector payloads do not flood logs
func sanitizeSQL(sql string) string {
	sql = passwordPattern.ReplaceAllString(sql, `$1***$3`)
	sql = vectorPattern.ReplaceAllStringFunc(sql, func(v string) string {
		return fmt.Sprintf("<vector dim=%d>", len(numberPattern.FindAllString(v, -1)))
	})
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "...(truncated)"
	}
	return sql
}
