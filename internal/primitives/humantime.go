package primitives

import (
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/agrama/agrama/internal/types"
)

// timeParser resolves a retrieve call's since argument into a
// nanosecond timestamp, accepting either a raw integer or a
// human-relative phrase such as "yesterday" or "2 hours ago".
type timeParser struct {
	w *when.Parser
}

func newTimeParser() *timeParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &timeParser{w: w}
}

// Parse resolves value (an int64, float64, or string) into a nanosecond
// timestamp; human phrases are resolved relative to now. Any other type
// is rejected as InvalidInput.
func (tp *timeParser) Parse(value any, now time.Time) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n, nil
		}
		result, err := tp.w.Parse(trimmed, now)
		if err != nil || result == nil {
			return 0, types.NewError(types.KindInvalidInput, "could not parse time phrase %q", v)
		}
		return result.Time.UnixNano(), nil
	default:
		return 0, types.NewError(types.KindInvalidInput, "since must be a timestamp or time phrase")
	}
}
