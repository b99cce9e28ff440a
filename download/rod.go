package download

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/lumenhq/surfdeck/surface"
)

// resolveURLJS picks the element's resource URL. An explicit attribute wins;
// otherwise the lookup chain depends on the tag, ending at the computed
// background image. The result is absolutized against the document base.
const resolveURLJS = `(attr) => {
	const el = this;
	const first = (...names) => {
		for (const n of names) {
			const v = el.getAttribute(n);
			if (v) return v;
		}
		return '';
	};
	let v = '';
	if (attr) {
		v = first(attr);
	} else {
		const tag = el.tagName.toLowerCase();
		if (tag === 'img' || tag === 'image') {
			v = first('src', 'data-src', 'data-original');
		} else if (tag === 'a') {
			v = first('href');
		} else if (tag === 'video' || tag === 'audio') {
			v = first('src', 'poster');
		} else if (tag === 'source') {
			v = first('src');
			if (!v) {
				const ss = el.getAttribute('srcset');
				if (ss) v = ss.split(',')[0].trim().split(/\s+/)[0];
			}
		} else {
			v = first('src', 'href', 'data-url');
		}
		if (!v) {
			const bg = getComputedStyle(el).backgroundImage;
			const m = bg && bg.match(/url\(["']?([^"')]+)/);
			if (m) v = m[1];
		}
	}
	if (!v || v.startsWith('data:')) return v;
	try { return new URL(v, document.baseURI).href; } catch (e) { return v; }
}`

// fetchJS downloads inside the page with credentials, returning the payload
// base64-encoded. Failures come back as a value, not an exception, so the
// Go side can distinguish HTTP status errors from thrown network errors.
const fetchJS = `async (url) => {
	try {
		const res = await fetch(url, { credentials: 'include' });
		if (!res.ok) {
			return { ok: false, status: res.status, error: 'HTTP ' + res.status };
		}
		const blob = await res.blob();
		const data = await new Promise((resolve, reject) => {
			const fr = new FileReader();
			fr.onload = () => resolve(fr.result);
			fr.onerror = () => reject(fr.error);
			fr.readAsDataURL(blob);
		});
		const comma = data.indexOf(',');
		return { ok: true, status: res.status, mime: blob.type, base64: data.slice(comma + 1) };
	} catch (err) {
		return { ok: false, status: 0, error: String(err) };
	}
}`

// Resolver maps refs and selectors to live elements; *refs.Session in
// production.
type Resolver interface {
	Resolve(ctx context.Context, target string) (*rod.Element, error)
}

// PageFetcher runs resolution and fetches inside a live surface.
type PageFetcher struct {
	sf  *surface.Surface
	res Resolver
}

// NewPageFetcher binds to a surface and its ref session.
func NewPageFetcher(sf *surface.Surface, res Resolver) *PageFetcher {
	return &PageFetcher{sf: sf, res: res}
}

// ResolveURL finds the element and extracts its resource URL.
func (p *PageFetcher) ResolveURL(ctx context.Context, target, attribute string) (string, error) {
	el, err := p.res.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(resolveURLJS, attribute)
	if err != nil {
		return "", fmt.Errorf("download: resolve url on %s: %w", target, err)
	}
	return res.Value.Str(), nil
}

// Fetch downloads the URL through the page, so the page's cookies and
// session apply.
func (p *PageFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	res, err := p.sf.Eval(ctx, fetchJS, url)
	if err != nil {
		return nil, "", fmt.Errorf("download: page fetch: %w", err)
	}
	var out struct {
		OK     bool   `json:"ok"`
		Status int    `json:"status"`
		Mime   string `json:"mime"`
		Base64 string `json:"base64"`
		Error  string `json:"error"`
	}
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, "", fmt.Errorf("download: decode fetch result: %w", err)
	}
	if !out.OK {
		return nil, "", errors.New(out.Error)
	}
	data, err := base64.StdEncoding.DecodeString(out.Base64)
	if err != nil {
		return nil, "", fmt.Errorf("download: decode payload: %w", err)
	}
	return data, out.Mime, nil
}
