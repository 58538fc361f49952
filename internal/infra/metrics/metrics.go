// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"time"
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func seconds(d time.Duration) float64 { return d.Seconds() }
