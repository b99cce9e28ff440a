package refs

// The walker runs in the page. It owns window.__sdRefs, the generation-
// tagged registry of live elements backing every ref the Go side hands out.
// Shared helper source is concatenated into both entry points so each stays
// a single self-contained Eval function.

const helperJS = `
	const INTERACTIVE_TAGS = {A:1, BUTTON:1, INPUT:1, SELECT:1, TEXTAREA:1, LABEL:1};
	const SKIP_TAGS = {SCRIPT:1, STYLE:1, TEMPLATE:1, NOSCRIPT:1};
	const INTERACTIVE_ROLES = {button:1, link:1, checkbox:1, radio:1, textbox:1,
		combobox:1, listbox:1, menuitem:1, menuitemcheckbox:1, menuitemradio:1,
		option:1, searchbox:1, slider:1, spinbutton:1, switch:1, tab:1};
	const TAG_ROLES = {A:'link', BUTTON:'button', SELECT:'combobox',
		TEXTAREA:'textbox', IMG:'img', NAV:'navigation', MAIN:'main',
		HEADER:'banner', FOOTER:'contentinfo', FORM:'form', TABLE:'table',
		UL:'list', OL:'list', LI:'listitem', H1:'heading', H2:'heading',
		H3:'heading', H4:'heading', H5:'heading', H6:'heading', LABEL:'label'};
	const INPUT_ROLES = {checkbox:'checkbox', radio:'radio', button:'button',
		submit:'button', reset:'button', image:'button', range:'slider',
		number:'spinbutton', search:'searchbox'};

	const isVisible = (el) => {
		const st = getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') return false;
		if (parseFloat(st.opacity) === 0) return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};

	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit;
		if (el.tagName === 'INPUT') {
			return INPUT_ROLES[(el.type || 'text').toLowerCase()] || 'textbox';
		}
		return TAG_ROLES[el.tagName] || 'generic';
	};

	const isInteractive = (el) => {
		if (INTERACTIVE_TAGS[el.tagName]) return true;
		const role = el.getAttribute('role');
		if (role && INTERACTIVE_ROLES[role]) return true;
		if (el.onclick || el.hasAttribute('onclick')) return true;
		const ti = el.getAttribute('tabindex');
		if (ti !== null && parseInt(ti, 10) >= 0) return true;
		if (el.isContentEditable) return true;
		return false;
	};

	const trunc = (s, max) => {
		if (!s) return '';
		return s.length > max ? s.slice(0, max) : s;
	};

	const nameOf = (el) => {
		const aria = el.getAttribute('aria-label');
		if (aria) return trunc(aria.trim(), 100);
		const labelledBy = el.getAttribute('aria-labelledby');
		if (labelledBy) {
			const src = document.getElementById(labelledBy.split(/\s+/)[0]);
			if (src) return trunc(src.textContent.trim(), 100);
		}
		if (el.labels && el.labels.length > 0) {
			return trunc(el.labels[0].textContent.trim(), 100);
		}
		const ph = el.getAttribute('placeholder');
		if (ph) return trunc(ph.trim(), 100);
		const title = el.getAttribute('title');
		if (title) return trunc(title.trim(), 100);
		const alt = el.getAttribute('alt');
		if (alt) return trunc(alt.trim(), 100);
		const text = (el.textContent || '').trim().replace(/\s+/g, ' ');
		if (text && text.length < 100) return text;
		if (el.tagName === 'INPUT' && ['button','submit','reset'].includes((el.type || '').toLowerCase())) {
			return trunc(el.value, 100);
		}
		return '';
	};

	const attrsOf = (el) => {
		const out = {};
		const href = el.getAttribute('href');
		if (href) out.href = trunc(href, 100);
		const src = el.getAttribute('src');
		if (src) out.src = trunc(src, 100);
		if (el.disabled) out.disabled = 'true';
		if (el.checked) out.checked = 'true';
		if (el.required) out.required = 'true';
		if (el.readOnly) out.readonly = 'true';
		return Object.keys(out).length ? out : undefined;
	};

	const lineOf = (ref, el) => ({
		ref: ref,
		role: roleOf(el),
		name: nameOf(el) || undefined,
		tag: el.tagName.toLowerCase(),
		attrs: attrsOf(el),
	});
`

// walkerJS builds a full snapshot: depth-first pre-order walk, replacing
// the registry wholesale so all prior generations are dropped.
const walkerJS = `(opts) => {` + helperJS + `
	const reg = {gen: opts.gen, els: {}};
	const lines = [];
	let next = opts.start;
	let truncated = false;

	const emit = (el) => {
		const ref = '@e' + (next++);
		reg.els[ref] = el;
		lines.push(lineOf(ref, el));
	};

	const wanted = (el) => {
		if (isInteractive(el)) return true;
		if (opts.includeImages && el.tagName === 'IMG') return true;
		if (opts.includeLinks && el.tagName === 'A') return true;
		return false;
	};

	const walk = (el) => {
		if (truncated) return;
		if (el.nodeType !== 1) return;
		if (SKIP_TAGS[el.tagName]) return;
		if (!isVisible(el)) return;

		if (!opts.interactiveOnly || wanted(el)) {
			if (opts.maxElements > 0 && lines.length >= opts.maxElements) {
				truncated = true;
				return;
			}
			emit(el);
		}
		// Non-relevant wrappers emit no line but their children are still
		// visited; this flattening keeps snapshots compact.
		for (const child of el.children) {
			walk(child);
			if (truncated) return;
		}
	};

	if (document.body) walk(document.body);
	window.__sdRefs = reg;
	return {lines: lines, truncated: truncated, next: next};
}`

// queryJS assigns refs additively for a CSS selector, without clearing the
// registry. Elements already tracked in this generation keep their ref.
const queryJS = `(sel, gen, start) => {` + helperJS + `
	let reg = window.__sdRefs;
	if (!reg || reg.gen !== gen) {
		reg = {gen: gen, els: {}};
		window.__sdRefs = reg;
	}
	const lines = [];
	let next = start;

	for (const el of document.querySelectorAll(sel)) {
		let ref = null;
		for (const k in reg.els) {
			if (reg.els[k] === el) { ref = k; break; }
		}
		if (!ref) {
			ref = '@e' + (next++);
			reg.els[ref] = el;
		}
		lines.push(lineOf(ref, el));
	}
	return {lines: lines, next: next};
}`

// selectorJS builds a unique CSS selector for "this" element.
const selectorJS = `() => {
	const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s;
	if (this.id) return '#' + esc(this.id);

	const parts = [];
	let el = this;
	while (el && el.nodeType === 1 && el !== document.body) {
		let part = el.tagName.toLowerCase();
		if (el.id) {
			parts.unshift('#' + esc(el.id));
			break;
		}
		const parent = el.parentElement;
		if (parent) {
			const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
			if (siblings.length > 1) {
				part += ':nth-of-type(' + (siblings.indexOf(el) + 1) + ')';
			}
		}
		parts.unshift(part);
		el = parent;
	}
	return parts.join(' > ');
}`
