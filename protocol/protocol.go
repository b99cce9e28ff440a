// Package protocol defines the typed request/response envelope between a
// controller and one execution surface: an Operation in, exactly one
// correlated Result out.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies an operation type. The set is closed: the dispatcher keeps
// an exhaustive handler table over KnownKinds and refuses to start with a
// missing entry.
type Kind string

const (
	KindNavigate           Kind = "navigate"
	KindSnapshot           Kind = "snapshot"
	KindClick              Kind = "click"
	KindFill               Kind = "fill"
	KindType               Kind = "type"
	KindScreenshot         Kind = "screenshot"
	KindBack               Kind = "back"
	KindForward            Kind = "forward"
	KindReload             Kind = "reload"
	KindGetURL             Kind = "getUrl"
	KindGetTitle           Kind = "getTitle"
	KindGetText            Kind = "getText"
	KindScroll             Kind = "scroll"
	KindWait               Kind = "wait"
	KindPress              Kind = "press"
	KindSelect             Kind = "select"
	KindCheck              Kind = "check"
	KindHover              Kind = "hover"
	KindDrag               Kind = "drag"
	KindDownloadImage      Kind = "downloadImage"
	KindDownloadFile       Kind = "downloadFile"
	KindDownloadBatch      Kind = "downloadBatch"
	KindEmulate            Kind = "emulate"
	KindEvaluate           Kind = "evaluate"
	KindQuerySelector      Kind = "querySelector"
	KindGetAttribute       Kind = "getAttribute"
	KindExtractContent     Kind = "extractContent"
	KindFullPageScreenshot Kind = "fullPageScreenshot"
	KindStorage            Kind = "storage"
	KindGetSelector        Kind = "getSelector"
	KindConsoleQuery       Kind = "consoleQuery"
	KindConsoleCollect     Kind = "consoleCollect"
	KindConsoleClear       Kind = "consoleClear"
	KindNetworkStart       Kind = "networkStart"
	KindNetworkStop        Kind = "networkStop"
	KindNetworkQuery       Kind = "networkQuery"
	KindNetworkClear       Kind = "networkClear"
	KindLock               Kind = "lock"
	KindUnlock             Kind = "unlock"
)

// KnownKinds returns every operation kind the protocol defines, in a stable
// order suitable for registration loops.
func KnownKinds() []Kind {
	return []Kind{
		KindNavigate, KindSnapshot, KindClick, KindFill, KindType,
		KindScreenshot, KindBack, KindForward, KindReload, KindGetURL,
		KindGetTitle, KindGetText, KindScroll, KindWait, KindPress,
		KindSelect, KindCheck, KindHover, KindDrag, KindDownloadImage,
		KindDownloadFile, KindDownloadBatch, KindEmulate, KindEvaluate,
		KindQuerySelector, KindGetAttribute, KindExtractContent,
		KindFullPageScreenshot, KindStorage, KindGetSelector,
		KindConsoleQuery, KindConsoleCollect, KindConsoleClear,
		KindNetworkStart, KindNetworkStop, KindNetworkQuery,
		KindNetworkClear, KindLock, KindUnlock,
	}
}

// Operation is one controller request. ID is unique per in-flight request
// and is echoed back on the Result.
type Operation struct {
	ID     string         `json:"id"`
	Type   Kind           `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Result is the single response to an accepted Operation. ID echoes the
// Operation's ID; the dispatcher fills it. Failures are carried in Error;
// nothing is ever thrown across the protocol boundary.
type Result struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result { return Result{Success: true, Data: data} }

// Fail wraps an error in a failed Result.
func Fail(err error) Result { return Result{Success: false, Error: err.Error()} }

// Failf builds a failed Result from a format string.
func Failf(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// String returns a string parameter. Missing or mistyped values return "".
func (o Operation) String(name string) string {
	v, _ := o.Params[name].(string)
	return v
}

// StringOr returns a string parameter or a default.
func (o Operation) StringOr(name, def string) string {
	if v, ok := o.Params[name].(string); ok && v != "" {
		return v
	}
	return def
}

// RequireString returns a string parameter or ErrInvalidParam when absent.
func (o Operation) RequireString(name string) (string, error) {
	v, ok := o.Params[name].(string)
	if !ok || v == "" {
		return "", &ErrInvalidParam{Name: name, Reason: "required string parameter"}
	}
	return v, nil
}

// Int returns an integer parameter. JSON numbers decode as float64, so both
// numeric forms are accepted.
func (o Operation) Int(name string, def int) int {
	switch v := o.Params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Float returns a float parameter or a default.
func (o Operation) Float(name string, def float64) float64 {
	switch v := o.Params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns a boolean parameter or a default.
func (o Operation) Bool(name string, def bool) bool {
	if v, ok := o.Params[name].(bool); ok {
		return v
	}
	return def
}
