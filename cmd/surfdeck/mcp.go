package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumenhq/surfdeck/kit"
	"github.com/lumenhq/surfdeck/protocol"
)

// toolDescriptions documents each operation kind for MCP clients.
var toolDescriptions = map[protocol.Kind]string{
	protocol.KindNavigate:           "Navigate the page to a URL. Params: url (required), waitUntil (none|load|domcontentloaded|networkidle), timeout (ms).",
	protocol.KindSnapshot:           "Take an element snapshot of the page; returns @eN refs usable as action targets. Params: interactiveOnly, maxElements, includeImages, includeLinks.",
	protocol.KindClick:              "Click an element. Params: ref or selector, button (left|right|middle), clickCount or doubleClick.",
	protocol.KindFill:               "Fill an input with a value through the framework-safe setter. Params: ref or selector, value.",
	protocol.KindType:               "Type text into an element keystroke by keystroke. Params: ref or selector, text, delay (ms per key).",
	protocol.KindScreenshot:         "Capture the visible viewport. Params: format (png|jpeg), quality, maxWidth. Returns base64 data.",
	protocol.KindBack:               "Go back one history entry. Params: waitUntil, timeout (ms).",
	protocol.KindForward:            "Go forward one history entry. Params: waitUntil, timeout (ms).",
	protocol.KindReload:             "Reload the current page. Params: waitUntil, timeout (ms).",
	protocol.KindGetURL:             "Return the current page URL.",
	protocol.KindGetTitle:           "Return the current page title.",
	protocol.KindGetText:            "Return the text content of an element or of the whole page. Params: ref or selector (optional).",
	protocol.KindScroll:             "Scroll an element into view or scroll by a delta. Params: ref or selector, deltaX, deltaY.",
	protocol.KindWait:               "Wait for a load state or a fixed delay. Params: waitUntil or time (ms), timeout (ms).",
	protocol.KindPress:              "Press a key or key combination, e.g. Enter or Control+a. Params: key.",
	protocol.KindSelect:             "Select options in a select element. Params: ref or selector, values.",
	protocol.KindCheck:              "Set a checkbox or radio state. Params: ref or selector, checked.",
	protocol.KindHover:              "Hover an element, triggering both CSS and synthetic hover paths. Params: ref or selector.",
	protocol.KindDrag:               "Drag one element onto another with synthetic drag events. Params: ref or selector, targetRef or targetSelector.",
	protocol.KindDownloadImage:      "Download an image element's resource. Params: ref, selector or url, filePath, attribute, retry, timeout (ms).",
	protocol.KindDownloadFile:       "Download a linked file. Params: ref, selector or url, filePath, attribute, retry, timeout (ms).",
	protocol.KindDownloadBatch:      "Download a batch of items through a bounded worker pool. Params: items, retry, timeout (ms), continueOnError, concurrent.",
	protocol.KindEmulate:            "Apply or reset device emulation. Params: width, height, scale, mobile, touch, userAgent, reset.",
	protocol.KindEvaluate:           "Evaluate a JavaScript expression in the page. Params: expression.",
	protocol.KindQuerySelector:      "Query elements by CSS selector; mints refs without clearing existing ones. Params: selector.",
	protocol.KindGetAttribute:       "Read an element attribute. Params: ref or selector, attribute.",
	protocol.KindExtractContent:     "Extract readable content as text, sanitized HTML and markdown. Params: mode (css|density), selectors, minLength.",
	protocol.KindFullPageScreenshot: "Capture the full scrollable page. Params: format, quality, maxWidth. Returns base64 data.",
	protocol.KindStorage:            "Read or write localStorage/sessionStorage. Params: storageType (local|session), key, value (write when present).",
	protocol.KindGetSelector:        "Compute a stable CSS selector for an element. Params: ref or selector.",
	protocol.KindConsoleQuery:       "Query captured console entries. Params: level, text, source, since (ms epoch), limit, offset.",
	protocol.KindConsoleCollect:     "Block until N matching console entries arrive or the timeout elapses. Params: count, timeout (ms), level, text, source.",
	protocol.KindConsoleClear:       "Clear the console capture buffer.",
	protocol.KindNetworkStart:       "Start capturing fetch/XHR traffic.",
	protocol.KindNetworkStop:        "Stop capturing network traffic and clear the buffer.",
	protocol.KindNetworkQuery:       "Query captured requests. Params: url, method, errorsOnly, limit, offset.",
	protocol.KindNetworkClear:       "Clear captured requests while keeping capture active.",
	protocol.KindLock:               "Enter lock mode: block end-user interaction and keep the overlay visible across operations.",
	protocol.KindUnlock:             "Leave lock mode and restore end-user interaction.",
}

// registerMCP exposes one MCP tool per operation kind, all dispatching into
// the given session.
func registerMCP(srv *mcp.Server, sess *session) {
	for _, kind := range protocol.KnownKinds() {
		kind := kind
		tool := &mcp.Tool{
			Name:        "surf_" + string(kind),
			Description: toolDescriptions[kind],
			InputSchema: map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		}

		endpoint := func(ctx context.Context, req any) (any, error) {
			params, _ := req.(map[string]any)
			res := sess.disp.Dispatch(ctx, protocol.Operation{
				ID:     opIDs(),
				Type:   kind,
				Params: params,
			})
			if !res.Success {
				return nil, errors.New(res.Error)
			}
			return res.Data, nil
		}

		decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			params := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
					return nil, err
				}
			}
			return &kit.MCPDecodeResult{
				Request: params,
				EnrichCtx: func(ctx context.Context) context.Context {
					ctx = kit.WithTransport(ctx, "mcp")
					return kit.WithSessionID(ctx, sess.ID)
				},
			}, nil
		}

		kit.RegisterMCPTool(srv, tool, endpoint, decode)
	}
}
