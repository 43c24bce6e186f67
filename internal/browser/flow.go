package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"direktori/internal/config"
	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/submit"
)

// Edit form field selectors. These are fixed by the registry form markup;
// the flow-control selectors live in config.Selectors.
const (
	selAddress         = "#alamat_usaha"
	selProfilingSource = "#sumber_profiling"
	selProfilingNote   = "#catatan_profiling"
	selSLS             = "#sls"
	selLatitude        = "#latitude"
	selLongitude       = "#longitude"
	selEmail           = "#email"
	selEmailCheck      = "#check-email"
	selWebsite         = "#website"
	selPhone           = "#telepon"
	selWhatsApp        = "#whatsapp"
	selProvince        = "#provinsi"
	selRegency         = "#kabupaten_kota"
	selDistrict        = "#kecamatan"
	selVillage         = "#kelurahan_desa"
	selLegalForm       = "#badan_usaha"
	selFoundedYear     = "#tahun_berdiri"
	selBusinessStatus  = "#keberadaan_usaha"
	radioNetwork       = "jaringan_usaha"
	selActivityRow     = "#container-kegiatan-usaha-repeater [data-repeater-item]"
	selAddActivity     = "#add-kegiatan-usaha"
	selActivityInput   = "#container-kegiatan-usaha-repeater [data-repeater-item] input.l_kegiatan_usaha"
	selCategory        = "#container-kegiatan-usaha-repeater [data-repeater-item] select.l_kategori_usaha"
	selKBLI            = "#container-kegiatan-usaha-repeater [data-repeater-item] select.l_kbli"
	selMainProduct     = "#container-kegiatan-usaha-repeater [data-repeater-item] input.l_produk_utama"
)

const (
	pollInterval     = 250 * time.Millisecond
	blockUITimeout   = 20 * time.Second
	checkMapTimeout  = 25 * time.Second
	cascadeTimeout   = 7 * time.Second
	resultSettle     = 1500 * time.Millisecond
	formStateRetries = 3
)

type formFlow struct {
	cfg     config.Browser
	sel     config.Selectors
	timeout time.Duration
	logger  *slog.Logger
}

func (f *formFlow) run(ctx context.Context, item *queue.WorkItem) (submit.Outcome, error) {
	key := item.BusinessKey
	if err := f.ensureLoggedIn(ctx); err != nil {
		return submit.Outcome{}, err
	}

	f.logger.Debug("searching registry", logging.String("step", "search"))
	if err := f.search(ctx, key); err != nil {
		return submit.Outcome{}, err
	}

	f.logger.Debug("opening edit form", logging.String("step", "open_edit"))
	if err := f.openEdit(ctx); err != nil {
		return submit.Outcome{}, err
	}
	state, err := f.awaitForm(ctx)
	if err != nil {
		return submit.Outcome{}, err
	}
	switch {
	case state.Locked:
		return submit.LockedByOther(), nil
	case state.Approval:
		return submit.ApprovalInProgress(), nil
	case state.Submitted:
		return submit.AlreadySubmitted(), nil
	}

	f.logger.Debug("filling form", logging.String("step", "fill"))
	if err := f.fill(ctx, &item.Payload); err != nil {
		return submit.Outcome{}, err
	}

	f.logger.Debug("submitting form", logging.String("step", "submit"))
	if err := f.submit(ctx); err != nil {
		return submit.Outcome{}, err
	}
	return submit.Success(), nil
}

func (f *formFlow) ensureLoggedIn(ctx context.Context) error {
	var location string
	if err := f.runTimed(ctx, f.timeout,
		chromedp.Navigate(f.cfg.BaseURL),
		chromedp.Location(&location),
	); err != nil {
		return infraf("open registry: %w", err)
	}
	if strings.Contains(strings.ToLower(location), "login") {
		return ErrSessionExpired
	}
	f.dismissTour(ctx)
	if err := f.runTimed(ctx, f.timeout, chromedp.WaitVisible(f.sel.FilterButton, chromedp.ByQuery)); err != nil {
		return infraf("landing page not ready: %w", err)
	}
	return nil
}

func (f *formFlow) search(ctx context.Context, key string) error {
	if err := f.setValue(ctx, f.sel.SearchInput, key); err != nil {
		return err
	}
	f.waitBlockUI(ctx, blockUITimeout)

	count, err := f.filterResults(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		f.logger.Debug("no search results, filtering again")
		if count, err = f.filterResults(ctx); err != nil {
			return err
		}
	}
	if count != 1 {
		return fmt.Errorf("business key %s is not unique or not found (matches=%d)", key, count)
	}
	return nil
}

func (f *formFlow) filterResults(ctx context.Context) (int, error) {
	var count int
	err := f.runTimed(ctx, f.timeout,
		chromedp.Click(f.sel.FilterButton, chromedp.ByQuery),
		chromedp.Sleep(resultSettle),
	)
	if err != nil {
		return 0, infraf("run search: %w", err)
	}
	f.waitBlockUI(ctx, blockUITimeout)
	if err := f.eval(ctx, countJS(f.sel.EditButton), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (f *formFlow) openEdit(ctx context.Context) error {
	var clicked bool
	if err := f.eval(ctx, prepareEditLinkJS(f.sel.EditButton), &clicked); err != nil {
		return err
	}
	if !clicked {
		return errors.New("edit button disappeared before it could be clicked")
	}
	f.clickIfVisible(ctx, f.sel.SwalConfirm)
	if err := f.runTimed(ctx, f.timeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return infraf("edit page did not load: %w", err)
	}
	f.dismissCoordinateAlert(ctx)
	return nil
}

// awaitForm waits until the page is either the edit form or a lock notice.
func (f *formFlow) awaitForm(ctx context.Context) (pageState, error) {
	var state pageState
	script := fmt.Sprintf(pageStateJS, jsString(f.sel.FormHeader), jsString(f.sel.ApprovalAlert), jsString(f.sel.CancelSubmit))
	for i := 0; i < formStateRetries; i++ {
		f.waitBlockUI(ctx, blockUITimeout)
		f.dismissTour(ctx)
		if err := f.eval(ctx, script, &state); err != nil {
			return state, infraf("inspect edit page: %w", err)
		}
		if state.Locked || state.Form {
			return state, nil
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(800*time.Millisecond)); err != nil {
			return state, err
		}
	}
	return state, infraf("edit form did not appear")
}

func (f *formFlow) fill(ctx context.Context, p *queue.Payload) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"profiling", func() error {
			if err := f.setValue(ctx, selProfilingSource, p.ProfilingSource); err != nil {
				return err
			}
			if err := f.setValue(ctx, selProfilingNote, p.ProfilingNote); err != nil {
				return err
			}
			return f.setValue(ctx, selSLS, p.SLSName)
		}},
		{"address", func() error { return f.setIfPresent(ctx, selAddress, strings.TrimSpace(p.Address)) }},
		{"email", func() error { return f.setEmail(ctx, p.Email) }},
		{"phone", func() error { return f.setIfPresent(ctx, selPhone, digitsOnly(p.Phone)) }},
		{"whatsapp", func() error { return f.setIfPresent(ctx, selWhatsApp, digitsOnly(p.WhatsApp)) }},
		{"website", func() error { return f.setIfPresent(ctx, selWebsite, strings.TrimSpace(p.Website)) }},
		{"coordinates", func() error {
			if err := f.setValue(ctx, selLatitude, strings.TrimSpace(p.Latitude)); err != nil {
				return err
			}
			return f.setValue(ctx, selLongitude, strings.TrimSpace(p.Longitude))
		}},
		{"business_status", func() error { return f.selectByLabel(ctx, selBusinessStatus, p.BusinessStatus) }},
		{"region", func() error { return f.setRegion(ctx, p) }},
		{"legal_form", func() error { return f.setLegalForm(ctx, p.LegalForm) }},
		{"founded_year", func() error { return f.setIfPresent(ctx, selFoundedYear, foundedYear(p.FoundedYear)) }},
		{"network", func() error { return f.setNetwork(ctx, p.BusinessNetwork) }},
		{"activity", func() error { return f.setActivity(ctx, p) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("fill %s: %w", step.name, err)
		}
	}
	return nil
}

func (f *formFlow) submit(ctx context.Context) error {
	if err := f.runTimed(ctx, f.timeout, chromedp.Click(f.sel.CheckMap, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("check map: %w", err)
	}
	f.waitBlockUI(ctx, checkMapTimeout)

	if err := f.runTimed(ctx, f.timeout, chromedp.Click(f.sel.Submit, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	f.clickAfter(ctx, f.sel.ConfirmConsistency, 2*time.Second)
	f.clickAfter(ctx, f.sel.IgnoreConsistency, 2*time.Second)
	f.dismissCoordinateAlert(ctx)
	f.clickAfter(ctx, f.sel.SwalConfirm, 5*time.Second)

	if err := f.runTimed(ctx, f.timeout, chromedp.WaitVisible(f.sel.SwalPopup, chromedp.ByQuery)); err != nil {
		return infraf("no confirmation after submit: %w", err)
	}
	var text string
	_ = f.eval(ctx, swalTextJS(f.sel.SwalPopup), &text)
	if text != "" {
		f.logger.Debug("submit confirmation", logging.String("alert", text))
	}
	f.clickIfVisible(ctx, f.sel.SwalConfirm)
	return nil
}

func (f *formFlow) runTimed(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		return chromedp.Run(ctx, actions...)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (f *formFlow) eval(ctx context.Context, script string, out any) error {
	return f.runTimed(ctx, f.timeout, chromedp.Evaluate(script, out))
}

// poll evaluates script until it returns true or timeout passes.
func (f *formFlow) poll(ctx context.Context, script string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := f.eval(ctx, script, &ok); err == nil && ok {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}

func (f *formFlow) waitBlockUI(ctx context.Context, timeout time.Duration) {
	if !f.poll(ctx, absentJS(f.sel.BlockUI), timeout) {
		f.logger.Debug("loading overlay still present", logging.Duration("waited", timeout))
	}
}

func (f *formFlow) dismissTour(ctx context.Context) {
	var ok bool
	_ = f.eval(ctx, dismissTourJS, &ok)
}

func (f *formFlow) clickIfVisible(ctx context.Context, sel string) bool {
	var clicked bool
	_ = f.eval(ctx, clickVisibleJS(sel), &clicked)
	return clicked
}

// clickAfter waits up to timeout for sel to become visible and clicks it.
func (f *formFlow) clickAfter(ctx context.Context, sel string, timeout time.Duration) bool {
	return f.poll(ctx, clickVisibleJS(sel), timeout)
}

// dismissCoordinateAlert acknowledges the "latitude/longitude tidak valid"
// alert the form raises for malformed coordinates, then lets the flow go on.
func (f *formFlow) dismissCoordinateAlert(ctx context.Context) {
	var text string
	if err := f.eval(ctx, swalTextJS(f.sel.SwalPopup), &text); err != nil || text == "" {
		return
	}
	if (strings.Contains(text, "latitude") || strings.Contains(text, "longitude")) && strings.Contains(text, "tidak valid") {
		f.logger.Debug("acknowledging coordinate alert", logging.String("alert", text))
		f.clickIfVisible(ctx, f.sel.SwalConfirm)
	}
}

func (f *formFlow) setValue(ctx context.Context, sel, value string) error {
	var ok bool
	if err := f.eval(ctx, setValueJS(sel, value), &ok); err != nil {
		return fmt.Errorf("set %s: %w", sel, err)
	}
	if !ok {
		return fmt.Errorf("form field %s not found", sel)
	}
	return nil
}

// setIfPresent fills sel when value is non-empty and the field exists.
// Empty values leave whatever the registry already holds.
func (f *formFlow) setIfPresent(ctx context.Context, sel, value string) error {
	if value == "" {
		return nil
	}
	var ok bool
	return f.eval(ctx, setValueJS(sel, value), &ok)
}

func (f *formFlow) setEmail(ctx context.Context, email string) error {
	var current string
	if err := f.eval(ctx, valueJS(selEmail), &current); err != nil {
		return err
	}
	var ok bool
	switch {
	case validEmail(current):
		return f.eval(ctx, setCheckedJS(selEmailCheck, true), &ok)
	case validEmail(email):
		if err := f.eval(ctx, setValueJS(selEmail, strings.TrimSpace(email)), &ok); err != nil {
			return err
		}
		return f.eval(ctx, setCheckedJS(selEmailCheck, true), &ok)
	default:
		if err := f.eval(ctx, setValueJS(selEmail, ""), &ok); err != nil {
			return err
		}
		return f.eval(ctx, setCheckedJS(selEmailCheck, false), &ok)
	}
}

func (f *formFlow) options(ctx context.Context, sel string) ([]option, error) {
	var opts []option
	if err := f.eval(ctx, optionsJS(sel), &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func (f *formFlow) selectByLabel(ctx context.Context, sel, label string) error {
	if strings.TrimSpace(label) == "" {
		return nil
	}
	opts, err := f.options(ctx, sel)
	if err != nil || len(opts) == 0 {
		return err
	}
	value, ok := optionByLabel(opts, label)
	if !ok {
		f.logger.Debug("no option matches label", logging.String("select", sel), logging.String("label", label))
		return nil
	}
	return f.setValue(ctx, sel, value)
}

// setRegion walks the province → regency → district → village cascade,
// choosing options by the bracketed code in their label.
func (f *formFlow) setRegion(ctx context.Context, p *queue.Payload) error {
	levels := []struct {
		sel  string
		code string
	}{
		{selProvince, p.ProvinceCode},
		{selRegency, p.RegencyCode},
		{selDistrict, p.DistrictCode},
		{selVillage, p.VillageCode},
	}
	for i, level := range levels {
		if normalizeCode(level.code) == "" {
			continue
		}
		var current string
		if err := f.eval(ctx, selectedLabelJS(level.sel), &current); err != nil {
			return err
		}
		if _, same := optionByCode([]option{{Value: "current", Label: current}}, level.code); same {
			continue
		}
		f.poll(ctx, fmt.Sprintf(`%s > 1`, countJS(level.sel+" option")), cascadeTimeout)
		opts, err := f.options(ctx, level.sel)
		if err != nil {
			return err
		}
		value, ok := optionByCode(opts, level.code)
		if !ok {
			logging.WarnWithContext(f.logger, "region code not offered by the form", "region_unmatched",
				logging.String("select", level.sel),
				logging.String("code", level.code),
				logging.String(logging.FieldImpact, "registry keeps its current region"),
			)
			return nil
		}
		if err := f.setValue(ctx, level.sel, value); err != nil {
			return err
		}
		if i+1 < len(levels) {
			f.waitBlockUI(ctx, blockUITimeout)
		}
	}
	return nil
}

func (f *formFlow) setLegalForm(ctx context.Context, legalForm string) error {
	var current string
	if err := f.eval(ctx, selectedLabelJS(selLegalForm), &current); err != nil {
		return err
	}
	cur := normalizeLabel(current)
	if cur != "" && !strings.Contains(cur, "pilih") && !strings.Contains(cur, "lainnya") {
		return nil
	}
	target := strings.TrimSpace(legalForm)
	if target == "" || normalizeLabel(target) == "lainnya" {
		return nil
	}
	opts, err := f.options(ctx, selLegalForm)
	if err != nil || len(opts) == 0 {
		return err
	}
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	if idx := bestMatch(target, labels); idx >= 0 {
		return f.setValue(ctx, selLegalForm, opts[idx].Value)
	}
	return nil
}

func (f *formFlow) setNetwork(ctx context.Context, network string) error {
	if strings.TrimSpace(network) == "" {
		return nil
	}
	var radios []option
	if err := f.eval(ctx, radiosJS(radioNetwork), &radios); err != nil || len(radios) == 0 {
		return err
	}
	labels := make([]string, len(radios))
	for i, r := range radios {
		labels[i] = r.Label
	}
	idx := bestMatch(network, labels)
	if idx < 0 {
		return nil
	}
	var ok bool
	return f.eval(ctx, checkRadioJS(radioNetwork, radios[idx].Value), &ok)
}

// setActivity fills the first KBLI repeater row.
func (f *formFlow) setActivity(ctx context.Context, p *queue.Payload) error {
	description := strings.TrimSpace(p.ActivityDescription)
	if description == "" && p.KBLI == "" && p.Category == "" {
		return nil
	}
	var rows int
	if err := f.eval(ctx, countJS(selActivityRow), &rows); err != nil {
		return err
	}
	if rows == 0 {
		if !f.clickIfVisible(ctx, selAddActivity) {
			f.logger.Debug("activity repeater not present")
			return nil
		}
		f.poll(ctx, fmt.Sprintf(`%s > 0`, countJS(selActivityRow)), cascadeTimeout)
	}
	if err := f.setIfPresent(ctx, selActivityInput, description); err != nil {
		return err
	}
	if category := strings.ToUpper(strings.TrimSpace(p.Category)); category != "" {
		opts, err := f.options(ctx, selCategory)
		if err != nil {
			return err
		}
		for _, o := range opts {
			if strings.EqualFold(o.Value, category) || strings.HasPrefix(normalizeLabel(o.Label), normalizeLabel(category)+" ") {
				if err := f.setValue(ctx, selCategory, o.Value); err != nil {
					return err
				}
				break
			}
		}
		f.poll(ctx, fmt.Sprintf(`%s > 1`, countJS(selKBLI+" option")), cascadeTimeout)
	}
	if code := digitsOnly(p.KBLI); code != "" {
		opts, err := f.options(ctx, selKBLI)
		if err != nil {
			return err
		}
		for _, o := range opts {
			if o.Value == code || strings.HasPrefix(digitsOnly(o.Label), code) {
				if err := f.setValue(ctx, selKBLI, o.Value); err != nil {
					return err
				}
				break
			}
		}
	}
	product := strings.TrimSpace(p.MainProduct)
	if product == "" {
		product = description
	}
	return f.setIfPresent(ctx, selMainProduct, product)
}
