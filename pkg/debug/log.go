// Package debug routes the package-level trace hooks to a logger.
package debug

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"github.com/recera/reflow/pkg/scheduler"
)

// EnableLogging sends scheduler, scope and compiler traces to logger at
// debug level.
func EnableLogging(logger *slog.Logger) {
	logFn := func(args ...interface{}) {
		logger.Debug(Sprint(args...))
	}

	scheduler.SetDebugLog(logFn)
	reactive.SetDebugLog(logFn)
	expr.SetDebugLog(logFn)
}

// DisableLogging unhooks every trace.
func DisableLogging() {
	scheduler.SetDebugLog(nil)
	reactive.SetDebugLog(nil)
	expr.SetDebugLog(nil)
}

// Sprint joins args with spaces, the way the trace hooks expect.
func Sprint(args ...interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
