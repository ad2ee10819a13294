package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"encodesync/internal/logging"
)

// Keys rendered in fixed positions rather than as trailing key=value pairs.
var headerKeys = map[string]struct{}{
	"ts":                   {},
	"level":                {},
	"msg":                  {},
	"source":               {},
	logging.FieldComponent: {},
}

// FormatLine renders a JSON log record as
// "15:04:05 INFO  [component] message key=value ...". Lines that are not JSON
// objects are returned unchanged.
func FormatLine(raw string) string {
	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return raw
	}

	var b strings.Builder
	if ts, ok := record["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ts = parsed.Local().Format("15:04:05")
		}
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	level, _ := record["level"].(string)
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(level))
	if component, ok := record[logging.FieldComponent].(string); ok && component != "" {
		fmt.Fprintf(&b, "[%s] ", component)
	}
	msg, _ := record["msg"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(record))
	for key := range record {
		if _, skip := headerKeys[key]; !skip {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, record[key])
	}
	return b.String()
}
