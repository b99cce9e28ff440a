package simulate

// In-page snippets for synthetic event dispatch, evaluated with `this`
// bound to the target element. Synthetic events carry isTrusted=false;
// pages that gate on trusted input need the platform-level fallbacks the
// Go side layers on top.

// clickJS fires the full mouse press sequence. count is 1 for a single
// click, 2 for a double click (detail and the trailing dblclick follow).
const clickJS = `(count, button) => {
	const el = this;
	const rect = el.getBoundingClientRect();
	const x = rect.x + rect.width / 2;
	const y = rect.y + rect.height / 2;
	const opts = (detail) => ({
		bubbles: true, cancelable: true, composed: true,
		clientX: x, clientY: y, button: button, detail: detail, view: window,
	});
	for (let i = 1; i <= count; i++) {
		el.dispatchEvent(new MouseEvent('mousedown', opts(i)));
		el.dispatchEvent(new MouseEvent('mouseup', opts(i)));
		el.dispatchEvent(new MouseEvent(button === 2 ? 'contextmenu' : 'click', opts(i)));
	}
	if (count === 2 && button === 0) {
		el.dispatchEvent(new MouseEvent('dblclick', opts(2)));
	}
}`

// fillJS sets the control's value through the prototype descriptor so
// framework-controlled inputs (React and friends trap the instance setter)
// observe the change, then fires input and change.
const fillJS = `(value) => {
	const el = this;
	el.focus();
	const proto = el instanceof HTMLTextAreaElement
		? HTMLTextAreaElement.prototype
		: HTMLInputElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) {
		desc.set.call(el, value);
	} else {
		el.value = value;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
}`

// hoverJS fires the pointer-enter sequence. The Go side also moves the
// real mouse; CSS :hover only tracks the platform pointer.
const hoverJS = `() => {
	const el = this;
	const rect = el.getBoundingClientRect();
	const x = rect.x + rect.width / 2;
	const y = rect.y + rect.height / 2;
	const opts = { bubbles: true, cancelable: true, composed: true, clientX: x, clientY: y, view: window };
	for (const type of ['pointerover', 'pointerenter', 'pointermove', 'mouseover', 'mouseenter', 'mousemove']) {
		const ev = type.startsWith('pointer') ? new PointerEvent(type, opts) : new MouseEvent(type, opts);
		el.dispatchEvent(ev);
	}
}`

// dragJS fires the drag event sequence from `this` (source) to dst at
// their rect midpoints. No dataTransfer payload is attached, so drop
// handlers that read one will see an empty transfer.
const dragJS = `(dst) => {
	const src = this;
	const mid = (el) => {
		const r = el.getBoundingClientRect();
		return { x: r.x + r.width / 2, y: r.y + r.height / 2 };
	};
	const a = mid(src), b = mid(dst);
	const ev = (type, p) => new MouseEvent(type, {
		bubbles: true, cancelable: true, composed: true,
		clientX: p.x, clientY: p.y, view: window,
	});
	src.dispatchEvent(ev('mousedown', a));
	src.dispatchEvent(ev('dragstart', a));
	dst.dispatchEvent(ev('dragenter', b));
	dst.dispatchEvent(ev('dragover', b));
	dst.dispatchEvent(ev('drop', b));
	src.dispatchEvent(ev('dragend', b));
	dst.dispatchEvent(ev('mouseup', b));
}`

// selectJS selects the options whose value, label or text matches one of
// the wanted entries, then fires input and change. Returns the values
// actually selected.
const selectJS = `(wanted) => {
	const el = this;
	const picked = [];
	const multiple = el.multiple;
	for (const opt of el.options) {
		const hit = wanted.includes(opt.value) || wanted.includes(opt.label) || wanted.includes(opt.text);
		if (multiple) {
			opt.selected = hit;
		} else if (hit && picked.length === 0) {
			el.value = opt.value;
		}
		if (hit) picked.push(opt.value);
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return picked;
}`

// checkJS sets a checkbox or radio to the wanted state, firing events only
// when the state actually flips. Returns whether it flipped.
const checkJS = `(checked) => {
	const el = this;
	if (el.checked === checked) return false;
	el.focus();
	const desc = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'checked');
	if (desc && desc.set) {
		desc.set.call(el, checked);
	} else {
		el.checked = checked;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`
