package netcap

// wrapJS replaces window.fetch and the XHR prototype methods with reporting
// wrappers, keeping the originals on a marker object so restore is exact.
// Running it on an already-wrapped document is a no-op, which makes the
// per-document re-injection safe.
const wrapJS = `() => {
	if (window.__sdNetOrig) return;
	const orig = {
		fetch: window.fetch,
		open: XMLHttpRequest.prototype.open,
		send: XMLHttpRequest.prototype.send,
	};
	window.__sdNetOrig = orig;
	const report = (data) => {
		try { window.__sdNetReport(JSON.stringify(data)); } catch (e) {}
	};

	window.fetch = async function(input, init) {
		const start = Date.now();
		const url = typeof input === 'string' ? input : (input && input.url) || String(input);
		const method = ((init && init.method) || (input && input.method) || 'GET').toUpperCase();
		const requestBody = (init && typeof init.body === 'string') ? init.body : '';
		try {
			const res = await orig.fetch.apply(this, arguments);
			let responseBody = '';
			try { responseBody = await res.clone().text(); } catch (e) {}
			report({
				method, url, status: res.status, requestBody, responseBody,
				contentType: res.headers.get('content-type') || '',
				start, duration: Date.now() - start, size: responseBody.length,
			});
			return res;
		} catch (err) {
			report({
				method, url, status: 0, requestBody,
				start, duration: Date.now() - start, error: String(err),
			});
			throw err;
		}
	};

	XMLHttpRequest.prototype.open = function(method, url) {
		this.__sdNet = { method: String(method).toUpperCase(), url: String(url) };
		return orig.open.apply(this, arguments);
	};

	XMLHttpRequest.prototype.send = function(body) {
		const meta = this.__sdNet;
		if (meta) {
			meta.start = Date.now();
			if (typeof body === 'string') meta.requestBody = body;
			this.addEventListener('loadend', () => {
				let responseBody = '';
				try {
					if (this.responseType === '' || this.responseType === 'text') {
						responseBody = this.responseText;
					}
				} catch (e) {}
				report({
					method: meta.method, url: meta.url, status: this.status,
					requestBody: meta.requestBody || '', responseBody,
					contentType: this.getResponseHeader('content-type') || '',
					start: meta.start, duration: Date.now() - meta.start,
					size: responseBody.length,
					error: this.status === 0 ? 'network error' : '',
				});
			});
		}
		return orig.send.apply(this, arguments);
	};
}`

// unwrapJS restores the saved originals on the live document. Returns
// whether anything was unwrapped.
const unwrapJS = `() => {
	const orig = window.__sdNetOrig;
	if (!orig) return false;
	window.fetch = orig.fetch;
	XMLHttpRequest.prototype.open = orig.open;
	XMLHttpRequest.prototype.send = orig.send;
	delete window.__sdNetOrig;
	return true;
}`
