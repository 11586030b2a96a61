package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when locating the caller of a log call.
var wrapperPackages = []string{
	"github.com/sirupsen/logrus",
	"catalogflow/logger",
}

// callerHook rewrites entry.Caller to the first frame outside the wrapper
// packages, so records point at the session or stream code that logged.
type callerHook struct {
	skip []string
}

func newCallerHook() *callerHook {
	return &callerHook{skip: wrapperPackages}
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := h.caller(); ok {
		entry.Caller = &frame
	}
	return nil
}

func (h *callerHook) caller() (runtime.Frame, bool) {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !h.wrapped(frame.Function) {
			return frame, frame.Function != ""
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func (h *callerHook) wrapped(fn string) bool {
	for _, pkg := range h.skip {
		if strings.HasPrefix(fn, pkg+".") || strings.HasPrefix(fn, pkg+"/") {
			return true
		}
	}
	return false
}
