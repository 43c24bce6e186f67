package browser

import (
	"encoding/json"
	"fmt"
)

// stealthJS hides the usual automation fingerprints.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
if (originalQuery) {
  window.navigator.permissions.query = (parameters) => (
    parameters && parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters)
  );
}
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['id-ID', 'id', 'en-US', 'en'] });
Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
`

// sameTabJS keeps window.open navigation in the current tab so the edit
// form opens where the flow is already attached.
const sameTabJS = `
(function () {
  const open = window.open;
  window.open = function (url) {
    try { if (url) { window.location.href = url; return window; } } catch (e) {}
    return open.apply(window, arguments);
  };
})();
`

// pageStateJS inspects the edit page. %s placeholders: form header
// selector, approval alert selector, cancel-submit selector.
const pageStateJS = `(() => {
  const visible = (el) => !!el && el.offsetParent !== null;
  const title = (document.title || '').trim().toLowerCase();
  const heads = Array.from(document.querySelectorAll('h1,h2,h3,h4'));
  const locked = title === 'not authorized - matchapro'
    || heads.some((h) => /profiling\s*info/i.test(h.innerText || ''))
    || Array.from(document.querySelectorAll('p')).some((p) =>
      /tidak bisa melakukan edit.*sedang diedit oleh user lain/i.test(p.innerText || ''));
  const form = Array.from(document.querySelectorAll(%s)).some((h) =>
    visible(h) && /form\s+update\s+usaha\/perusahaan/i.test(h.innerText || ''));
  let approval = false;
  const alert = document.querySelector(%s);
  if (alert) {
    const head = alert.querySelector('h4.alert-heading');
    if (head && /info approval/i.test(head.innerText || '')) {
      const body = alert.querySelector('.alert-body');
      approval = !body || /sedang melalui proses approval/i.test(body.innerText || '');
    }
  }
  return { locked, form, approval, submitted: visible(document.querySelector(%s)) };
})()`

type pageState struct {
	Locked    bool `json:"locked"`
	Form      bool `json:"form"`
	Approval  bool `json:"approval"`
	Submitted bool `json:"submitted"`
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func countJS(sel string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(sel))
}

func absentJS(sel string) string {
	return fmt.Sprintf(`document.querySelector(%s) === null`, jsString(sel))
}

// clickVisibleJS clicks the first visible match and reports whether it did.
func clickVisibleJS(sel string) string {
	return fmt.Sprintf(`(() => {
  const el = Array.from(document.querySelectorAll(%s)).find((e) => e.offsetParent !== null);
  if (!el) return false;
  el.click();
  return true;
})()`, jsString(sel))
}

// setValueJS fills an input or select and fires the events the form's
// jQuery handlers listen to. Reports false when the element is missing.
func setValueJS(sel, value string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.value = %s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  if (window.jQuery) { window.jQuery(el).trigger('change'); }
  return true;
})()`, jsString(sel), jsString(value))
}

func valueJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? String(el.value || '') : ''; })()`, jsString(sel))
}

func setCheckedJS(sel string, checked bool) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  if (el.checked !== %t) { el.click(); }
  return true;
})()`, jsString(sel), checked)
}

func optionsJS(sel string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s + ' option')).map((o) => ({ value: o.value, label: (o.text || '').trim() }))`, jsString(sel))
}

func selectedLabelJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el && el.selectedIndex >= 0 ? (el.options[el.selectedIndex].text || '') : ''; })()`, jsString(sel))
}

// radiosJS lists radio inputs named name with their label text.
func radiosJS(name string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('input[type="radio"][name="' + %s + '"]')).map((r) => {
  const lbl = r.id ? document.querySelector('label[for="' + r.id + '"]') : null;
  return { value: r.value, label: ((r.value || '') + ' ' + (lbl ? lbl.innerText : '')).trim() };
})`, jsString(name))
}

func checkRadioJS(name, value string) string {
	return fmt.Sprintf(`(() => {
  const r = Array.from(document.querySelectorAll('input[type="radio"][name="' + %s + '"]')).find((e) => e.value === %s);
  if (!r) return false;
  r.click();
  return true;
})()`, jsString(name), jsString(value))
}

// dismissTourJS closes the onboarding tour overlay when present.
const dismissTourJS = `(() => {
  for (let i = 0; i < 5; i++) {
    if (!document.querySelector('.shepherd-content')) return true;
    const skip = Array.from(document.querySelectorAll('.shepherd-content footer .shepherd-button'))
      .find((b) => /^\s*skip\s*$/i.test(b.innerText || ''));
    const close = document.querySelector('.shepherd-cancel-icon');
    if (skip) { skip.click(); } else if (close) { close.click(); } else { return false; }
  }
  return !document.querySelector('.shepherd-content');
})()`

// swalTextJS returns the visible alert text, lowercased.
func swalTextJS(popup string) string {
	return fmt.Sprintf(`(() => {
  const p = document.querySelector(%s);
  if (!p) return '';
  const t = p.querySelector('.swal2-html-container');
  return ((t ? t.innerText : p.innerText) || '').trim().toLowerCase();
})()`, jsString(popup))
}

func prepareEditLinkJS(sel string) string {
	return fmt.Sprintf(`(() => {
  const a = document.querySelector(%s);
  if (!a) return false;
  a.removeAttribute('target');
  a.click();
  return true;
})()`, jsString(sel))
}
