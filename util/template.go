package util

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/botforge/chatflow/logger"
	"go.uber.org/zap"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Substitute replaces {{name}} placeholders with variable values.
// Unresolved placeholders are left literal and logged, so authored
// flows stay debuggable instead of rendering empty strings.
func Substitute(text string, vars map[string]any) string {
	return placeholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			logger.Warn("unresolved placeholder in flow text", zap.String("placeholder", name))
			return match
		}
		return Stringify(value)
	})
}

// Stringify renders a variable value the way it should appear in
// message text. Floats holding whole numbers print without a decimal
// part since JSON decoding turns every number into float64.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsNumber interprets a variable value as a float, reporting whether
// the interpretation succeeded.
func AsNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
