package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lumenhq/surfdeck/conlog"
	"github.com/lumenhq/surfdeck/download"
	"github.com/lumenhq/surfdeck/extract"
	"github.com/lumenhq/surfdeck/navwait"
	"github.com/lumenhq/surfdeck/netcap"
	"github.com/lumenhq/surfdeck/protocol"
	"github.com/lumenhq/surfdeck/refs"
	"github.com/lumenhq/surfdeck/simulate"
	"github.com/lumenhq/surfdeck/surface"
)

// buildHandlers returns the full handler table. New validates it against
// protocol.KnownKinds, so adding a kind without a handler fails fast.
func (d *Dispatcher) buildHandlers() map[protocol.Kind]handlerFunc {
	return map[protocol.Kind]handlerFunc{
		protocol.KindNavigate:           d.handleNavigate,
		protocol.KindSnapshot:           d.handleSnapshot,
		protocol.KindClick:              d.handleClick,
		protocol.KindFill:               d.handleFill,
		protocol.KindType:               d.handleType,
		protocol.KindScreenshot:         d.handleScreenshot,
		protocol.KindBack:               d.handleBack,
		protocol.KindForward:            d.handleForward,
		protocol.KindReload:             d.handleReload,
		protocol.KindGetURL:             d.handleGetURL,
		protocol.KindGetTitle:           d.handleGetTitle,
		protocol.KindGetText:            d.handleGetText,
		protocol.KindScroll:             d.handleScroll,
		protocol.KindWait:               d.handleWait,
		protocol.KindPress:              d.handlePress,
		protocol.KindSelect:             d.handleSelect,
		protocol.KindCheck:              d.handleCheck,
		protocol.KindHover:              d.handleHover,
		protocol.KindDrag:               d.handleDrag,
		protocol.KindDownloadImage:      d.handleDownloadSingle,
		protocol.KindDownloadFile:       d.handleDownloadSingle,
		protocol.KindDownloadBatch:      d.handleDownloadBatch,
		protocol.KindEmulate:            d.handleEmulate,
		protocol.KindEvaluate:           d.handleEvaluate,
		protocol.KindQuerySelector:      d.handleQuerySelector,
		protocol.KindGetAttribute:       d.handleGetAttribute,
		protocol.KindExtractContent:     d.handleExtractContent,
		protocol.KindFullPageScreenshot: d.handleFullPageScreenshot,
		protocol.KindStorage:            d.handleStorage,
		protocol.KindGetSelector:        d.handleGetSelector,
		protocol.KindConsoleQuery:       d.handleConsoleQuery,
		protocol.KindConsoleCollect:     d.handleConsoleCollect,
		protocol.KindConsoleClear:       d.handleConsoleClear,
		protocol.KindNetworkStart:       d.handleNetworkStart,
		protocol.KindNetworkStop:        d.handleNetworkStop,
		protocol.KindNetworkQuery:       d.handleNetworkQuery,
		protocol.KindNetworkClear:       d.handleNetworkClear,
		protocol.KindLock:               d.handleLock,
		protocol.KindUnlock:             d.handleUnlock,
	}
}

// target pulls the element target from params, ref taking precedence.
func target(op protocol.Operation) (string, error) {
	if ref := op.String("ref"); ref != "" {
		return ref, nil
	}
	if sel := op.String("selector"); sel != "" {
		return sel, nil
	}
	return "", &protocol.ErrInvalidParam{Name: "ref", Reason: "either ref or selector is required"}
}

// opTimeout reads a millisecond timeout parameter.
func opTimeout(op protocol.Operation, name string, def time.Duration) time.Duration {
	if ms := op.Int(name, 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func (d *Dispatcher) handleNavigate(ctx context.Context, op protocol.Operation) protocol.Result {
	url, err := op.RequireString("url")
	if err != nil {
		return protocol.Fail(err)
	}
	until, err := navwait.ParseWaitUntil(op.String("waitUntil"))
	if err != nil {
		return protocol.Fail(err)
	}
	if err := d.sf.Navigate(ctx, url); err != nil {
		return protocol.Fail(err)
	}
	state, err := d.wait.Wait(ctx, until, opTimeout(op, "timeout", 0))
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"url": url, "loadState": string(state)})
}

func (d *Dispatcher) handleBack(ctx context.Context, op protocol.Operation) protocol.Result {
	return d.historyMove(ctx, op, d.sf.Back)
}

func (d *Dispatcher) handleForward(ctx context.Context, op protocol.Operation) protocol.Result {
	return d.historyMove(ctx, op, d.sf.Forward)
}

func (d *Dispatcher) handleReload(ctx context.Context, op protocol.Operation) protocol.Result {
	return d.historyMove(ctx, op, d.sf.Reload)
}

func (d *Dispatcher) historyMove(ctx context.Context, op protocol.Operation, move func(context.Context) error) protocol.Result {
	until, err := navwait.ParseWaitUntil(op.String("waitUntil"))
	if err != nil {
		return protocol.Fail(err)
	}
	if err := move(ctx); err != nil {
		return protocol.Fail(err)
	}
	state, err := d.wait.Wait(ctx, until, opTimeout(op, "timeout", 0))
	if err != nil {
		return protocol.Fail(err)
	}
	url, _ := d.sf.URL(ctx)
	return protocol.OK(map[string]any{"url": url, "loadState": string(state)})
}

func (d *Dispatcher) handleSnapshot(ctx context.Context, op protocol.Operation) protocol.Result {
	snap, err := d.refs.Snapshot(ctx, refs.SnapshotOptions{
		InteractiveOnly: op.Bool("interactiveOnly", true),
		MaxElements:     op.Int("maxElements", 0),
		IncludeImages:   op.Bool("includeImages", false),
		IncludeLinks:    op.Bool("includeLinks", false),
	})
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{
		"text":      snap.Text,
		"elements":  len(snap.Lines),
		"truncated": snap.Truncated,
	})
}

func (d *Dispatcher) handleQuerySelector(ctx context.Context, op protocol.Operation) protocol.Result {
	sel, err := op.RequireString("selector")
	if err != nil {
		return protocol.Fail(err)
	}
	lines, err := d.refs.QuerySelector(ctx, sel)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{
		"text":     refs.FormatLines(lines, false),
		"elements": len(lines),
	})
}

func (d *Dispatcher) handleClick(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	count := op.Int("clickCount", 1)
	if op.Bool("doubleClick", false) {
		count = 2
	}
	if err := d.sim.Click(ctx, tgt, simulate.ClickOptions{
		Button: op.StringOr("button", "left"),
		Count:  count,
	}); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleFill(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	value, ok := op.Params["value"].(string)
	if !ok {
		return protocol.Fail(&protocol.ErrInvalidParam{Name: "value", Reason: "required string parameter"})
	}
	if err := d.sim.Fill(ctx, tgt, value); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleType(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	text, err := op.RequireString("text")
	if err != nil {
		return protocol.Fail(err)
	}
	delay := time.Duration(op.Int("delay", 0)) * time.Millisecond
	if err := d.sim.Type(ctx, tgt, text, delay); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handlePress(ctx context.Context, op protocol.Operation) protocol.Result {
	combo, err := op.RequireString("key")
	if err != nil {
		return protocol.Fail(err)
	}
	if err := d.sim.Press(ctx, combo); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleSelect(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	var values []string
	switch v := op.Params["values"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	case string:
		values = []string{v}
	}
	if single := op.String("value"); single != "" {
		values = append(values, single)
	}
	if len(values) == 0 {
		return protocol.Fail(&protocol.ErrInvalidParam{Name: "values", Reason: "at least one option value is required"})
	}
	picked, err := d.sim.SelectOptions(ctx, tgt, values)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"selected": picked})
}

func (d *Dispatcher) handleCheck(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	state, err := d.sim.SetChecked(ctx, tgt, op.Bool("checked", true))
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"checked": state})
}

func (d *Dispatcher) handleHover(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	if err := d.sim.Hover(ctx, tgt); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleDrag(ctx context.Context, op protocol.Operation) protocol.Result {
	src, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	dst := op.String("targetRef")
	if dst == "" {
		dst = op.String("targetSelector")
	}
	if dst == "" {
		return protocol.Fail(&protocol.ErrInvalidParam{Name: "targetRef", Reason: "either targetRef or targetSelector is required"})
	}
	if err := d.sim.Drag(ctx, src, dst); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleScroll(ctx context.Context, op protocol.Operation) protocol.Result {
	dx := op.Float("deltaX", 0)
	dy := op.Float("deltaY", 0)
	if tgt, err := target(op); err == nil && dx == 0 && dy == 0 {
		if err := d.sim.ScrollIntoView(ctx, tgt); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(nil)
	}
	if err := d.sf.Scroll(ctx, op.String("selector"), dx, dy); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleWait(ctx context.Context, op protocol.Operation) protocol.Result {
	// A bare millisecond wait sleeps; otherwise this waits on a load state.
	if ms := op.Int("time", 0); ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return protocol.Fail(ctx.Err())
		}
		return protocol.OK(nil)
	}
	until, err := navwait.ParseWaitUntil(op.StringOr("waitUntil", op.String("state")))
	if err != nil {
		return protocol.Fail(err)
	}
	state, err := d.wait.Wait(ctx, until, opTimeout(op, "timeout", 0))
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"loadState": string(state)})
}

func (d *Dispatcher) handleGetURL(ctx context.Context, op protocol.Operation) protocol.Result {
	url, err := d.sf.URL(ctx)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"url": url})
}

func (d *Dispatcher) handleGetTitle(ctx context.Context, op protocol.Operation) protocol.Result {
	title, err := d.sf.Title(ctx)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"title": title})
}

func (d *Dispatcher) handleGetText(ctx context.Context, op protocol.Operation) protocol.Result {
	if tgt, err := target(op); err == nil {
		text, err := d.refs.Text(ctx, tgt)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(map[string]any{"text": text})
	}
	text, err := d.sf.Text(ctx)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"text": text})
}

func (d *Dispatcher) handleGetAttribute(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	name, err := op.RequireString("attribute")
	if err != nil {
		return protocol.Fail(err)
	}
	val, err := d.refs.Attribute(ctx, tgt, name)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"value": val})
}

func (d *Dispatcher) handleGetSelector(ctx context.Context, op protocol.Operation) protocol.Result {
	tgt, err := target(op)
	if err != nil {
		return protocol.Fail(err)
	}
	sel, err := d.refs.Selector(ctx, tgt)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"selector": sel})
}

func (d *Dispatcher) handleScreenshot(ctx context.Context, op protocol.Operation) protocol.Result {
	return d.capture(ctx, op, false)
}

func (d *Dispatcher) handleFullPageScreenshot(ctx context.Context, op protocol.Operation) protocol.Result {
	return d.capture(ctx, op, true)
}

func (d *Dispatcher) capture(ctx context.Context, op protocol.Operation, fullPage bool) protocol.Result {
	format := op.StringOr("format", "png")
	data, err := d.sf.Screenshot(ctx, surface.ScreenshotOptions{
		FullPage: fullPage,
		Format:   format,
		Quality:  op.Int("quality", 0),
		MaxWidth: op.Int("maxWidth", 0),
	})
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{
		"data":   base64.StdEncoding.EncodeToString(data),
		"format": format,
	})
}

func (d *Dispatcher) handleEmulate(ctx context.Context, op protocol.Operation) protocol.Result {
	if op.Bool("reset", false) {
		if err := d.sf.ClearEmulation(ctx); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(nil)
	}
	profile := surface.DeviceProfile{
		Width:     op.Int("width", 1280),
		Height:    op.Int("height", 800),
		Scale:     op.Float("scale", 1),
		Mobile:    op.Bool("mobile", false),
		Touch:     op.Bool("touch", false),
		UserAgent: op.String("userAgent"),
	}
	if err := d.sf.Emulate(ctx, profile); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func (d *Dispatcher) handleEvaluate(ctx context.Context, op protocol.Operation) protocol.Result {
	expr, err := op.RequireString("expression")
	if err != nil {
		return protocol.Fail(err)
	}
	res, err := d.sf.Eval(ctx, wrapExpression(expr))
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"value": res.Value.Val()})
}

// wrapExpression turns a bare expression into the function form the runtime
// evaluator expects; already-function-shaped scripts pass through.
func wrapExpression(js string) string {
	t := strings.TrimSpace(js)
	if strings.HasPrefix(t, "(") || strings.HasPrefix(t, "function") || strings.HasPrefix(t, "async") {
		return t
	}
	return "() => { return (" + t + "); }"
}

func (d *Dispatcher) handleExtractContent(ctx context.Context, op protocol.Operation) protocol.Result {
	rawHTML, err := d.sf.HTML(ctx)
	if err != nil {
		return protocol.Fail(err)
	}
	var selectors []string
	if list, ok := op.Params["selectors"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				selectors = append(selectors, s)
			}
		}
	}
	res, err := extract.Extract(rawHTML, extract.Options{
		Mode:      extract.Mode(op.StringOr("mode", string(extract.ModeDensity))),
		Selectors: selectors,
		MinLength: op.Int("minLength", 0),
	})
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(res)
}

func (d *Dispatcher) handleStorage(ctx context.Context, op protocol.Operation) protocol.Result {
	kind := op.StringOr("storageType", "local")
	key := op.String("key")
	if raw, ok := op.Params["value"]; ok {
		value, ok := raw.(string)
		if !ok {
			return protocol.Fail(&protocol.ErrInvalidParam{Name: "value", Reason: "must be a string"})
		}
		if key == "" {
			return protocol.Fail(&protocol.ErrInvalidParam{Name: "key", Reason: "required when writing"})
		}
		if _, err := d.sf.Storage(ctx, kind, key, &value); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(nil)
	}
	entries, err := d.sf.Storage(ctx, kind, key, nil)
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"entries": entries})
}

func (d *Dispatcher) handleDownloadSingle(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.dl == nil {
		return protocol.Failf("download engine not configured")
	}
	filePath, err := op.RequireString("filePath")
	if err != nil {
		return protocol.Fail(err)
	}
	item := download.Item{
		Ref:       op.String("ref"),
		Selector:  op.String("selector"),
		URL:       op.String("url"),
		FilePath:  filePath,
		Attribute: op.String("attribute"),
	}
	summary := d.dl.Run(ctx, []download.Item{item}, download.Options{
		Retry:           op.Int("retry", 0),
		Timeout:         opTimeout(op, "timeout", 0),
		ContinueOnError: true,
	})
	return protocol.OK(summary.Outcomes[0])
}

func (d *Dispatcher) handleDownloadBatch(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.dl == nil {
		return protocol.Failf("download engine not configured")
	}
	raw, ok := op.Params["items"]
	if !ok {
		return protocol.Fail(&protocol.ErrInvalidParam{Name: "items", Reason: "required list parameter"})
	}
	items, err := decodeItems(raw)
	if err != nil {
		return protocol.Fail(err)
	}
	summary := d.dl.Run(ctx, items, download.Options{
		Retry:           op.Int("retry", 0),
		Timeout:         opTimeout(op, "timeout", 0),
		ContinueOnError: op.Bool("continueOnError", true),
		Concurrent:      op.Int("concurrent", 0),
	})
	return protocol.OK(summary)
}

// decodeItems converts the raw params list into typed download items via a
// JSON round trip, sidestepping per-field map assertions.
func decodeItems(raw any) ([]download.Item, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, &protocol.ErrInvalidParam{Name: "items", Reason: "not serializable"}
	}
	var items []download.Item
	if err := json.Unmarshal(buf, &items); err != nil {
		return nil, &protocol.ErrInvalidParam{Name: "items", Reason: "must be a list of download items"}
	}
	if len(items) == 0 {
		return nil, &protocol.ErrInvalidParam{Name: "items", Reason: "must not be empty"}
	}
	for i, item := range items {
		if item.FilePath == "" {
			return nil, &protocol.ErrInvalidParam{Name: "items", Reason: fmt.Sprintf("item %d has no filePath", i)}
		}
	}
	return items, nil
}

func (d *Dispatcher) handleConsoleQuery(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.console == nil {
		return protocol.Failf("console capture not configured")
	}
	entries := d.console.Query(consoleFilter(op), op.Int("limit", 0), op.Int("offset", 0))
	return protocol.OK(map[string]any{"entries": entries, "total": d.console.Len()})
}

func (d *Dispatcher) handleConsoleCollect(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.console == nil {
		return protocol.Failf("console capture not configured")
	}
	col := d.console.Collect(ctx, consoleFilter(op), op.Int("count", 1), opTimeout(op, "timeout", 0))
	return protocol.OK(col)
}

func (d *Dispatcher) handleConsoleClear(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.console == nil {
		return protocol.Failf("console capture not configured")
	}
	d.console.Clear()
	return protocol.OK(nil)
}

func consoleFilter(op protocol.Operation) conlog.Filter {
	f := conlog.Filter{
		Level:         op.String("level"),
		TextPattern:   op.String("text"),
		SourcePattern: op.String("source"),
	}
	if ms := op.Int("since", 0); ms > 0 {
		f.Since = time.UnixMilli(int64(ms))
	}
	return f
}

func (d *Dispatcher) handleNetworkStart(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.net == nil {
		return protocol.Failf("network capture not configured")
	}
	if err := d.net.Start(); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"capturing": true})
}

func (d *Dispatcher) handleNetworkStop(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.net == nil {
		return protocol.Failf("network capture not configured")
	}
	if err := d.net.Stop(); err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(map[string]any{"capturing": false})
}

func (d *Dispatcher) handleNetworkQuery(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.net == nil {
		return protocol.Failf("network capture not configured")
	}
	captures, total := d.net.Query(netcap.Filter{
		URLPattern: op.String("url"),
		Method:     op.String("method"),
		ErrorsOnly: op.Bool("errorsOnly", false),
		Offset:     op.Int("offset", 0),
		Limit:      op.Int("limit", 0),
	})
	return protocol.OK(map[string]any{"requests": captures, "total": total})
}

func (d *Dispatcher) handleNetworkClear(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.net == nil {
		return protocol.Failf("network capture not configured")
	}
	d.net.Clear()
	return protocol.OK(nil)
}
