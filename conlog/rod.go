package conlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Attach subscribes the buffer to a page's console and browser log events.
// The returned stop function detaches the subscription; buffered entries
// stay behind.
func Attach(page *rod.Page, buf *Buffer) (stop func()) {
	ctx, cancel := context.WithCancel(page.GetContext())
	sub := page.Context(ctx)
	go sub.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			buf.Append(Entry{
				Level:   consoleLevel(e.Type),
				Message: formatArgs(e.Args),
				Source:  callSource(e.StackTrace),
			})
		},
		func(e *proto.LogEntryAdded) {
			buf.Append(Entry{
				Level:   string(e.Entry.Level),
				Message: e.Entry.Text,
				Source:  "browser",
			})
		},
	)()
	return cancel
}

func consoleLevel(t proto.RuntimeConsoleAPICalledType) string {
	switch t {
	case proto.RuntimeConsoleAPICalledTypeWarning:
		return "warn"
	case proto.RuntimeConsoleAPICalledTypeError, proto.RuntimeConsoleAPICalledTypeAssert:
		return "error"
	case proto.RuntimeConsoleAPICalledTypeDebug:
		return "debug"
	case proto.RuntimeConsoleAPICalledTypeInfo:
		return "info"
	default:
		return "log"
	}
}

// formatArgs renders console arguments space-separated, the way devtools
// prints them. Objects fall back to their remote description.
func formatArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case a.Value.Val() != nil:
			parts = append(parts, fmt.Sprint(a.Value.Val()))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}

func callSource(st *proto.RuntimeStackTrace) string {
	if st != nil && len(st.CallFrames) > 0 && st.CallFrames[0].URL != "" {
		return st.CallFrames[0].URL
	}
	return "console"
}
