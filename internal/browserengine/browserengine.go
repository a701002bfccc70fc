// Package browserengine runs declarative workflow step sequences against a
// pool of headless-browser contexts, for source adapters that have no
// usable API. Contexts are isolated (clean cookies/storage) unless a saved
// session is loaded, and pool slots are released on every exit path.
package browserengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

var viewports = []struct{ Width, Height int }{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// StepKind enumerates the declarative workflow step verbs.
type StepKind string

const (
	StepNavigate StepKind = "NAVIGATE"
	StepType     StepKind = "TYPE"
	StepClick    StepKind = "CLICK"
	StepWait     StepKind = "WAIT"
	StepExtract  StepKind = "EXTRACT"
)

// Step is one declarative action in a BrowserWorkflow.
type Step struct {
	Kind          StepKind `json:"kind"`
	Selector      string   `json:"selector,omitempty"`
	Value         string   `json:"value,omitempty"`
	Parameterized bool     `json:"parameterized,omitempty"`
	WaitMs        int      `json:"wait_ms,omitempty"`
}

// Workflow is the adapter_params payload for a Browser-kind source.
type Workflow struct {
	StartURL  string `json:"start_url"`
	Steps     []Step `json:"steps"`
	SessionID string `json:"session_id,omitempty"`
}

// StepStatus is the state-machine status of an executed step.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
)

// StepResult records the outcome of running a single step, including any
// data extracted by an EXTRACT step.
type StepResult struct {
	Step    Step
	Status  StepStatus
	Err     error
	Records []map[string]any
}

const (
	sourceName    = "browserengine"
	maxStepRetry  = 3
	sessionPrefix = "session-"
)

// Engine owns the bounded pool of browser contexts and the session store.
type Engine struct {
	mu            sync.Mutex
	browser       *rod.Browser
	maxContexts   int
	inUse         int
	sessionDir    string
	sessionMaxAge time.Duration
	limiter       *ratelimiter.Limiter
	logger        logger.Interface
	retry         adapter.RetryPolicy
	headless      bool
	sweepOnce     sync.Once
	sweepCancel   context.CancelFunc
}

// Config holds the browser engine's tunables (spec §4.3, §6).
type Config struct {
	MaxConcurrentContexts int
	SessionMaxAgeDays     int
	SessionDir            string
	Headless              bool
}

// New builds an Engine. The underlying browser process is launched lazily,
// by the first Execute call, so a deployment with no browser-kind source
// never pays for a Chrome process.
func New(cfg Config, limiter *ratelimiter.Limiter, log logger.Interface) *Engine {
	maxContexts := cfg.MaxConcurrentContexts
	if maxContexts <= 0 {
		maxContexts = 5
	}
	maxAgeDays := cfg.SessionMaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	return &Engine{
		maxContexts:   maxContexts,
		sessionDir:    cfg.SessionDir,
		sessionMaxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		limiter:       limiter,
		logger:        log,
		retry:         adapter.DefaultRetryPolicy,
		headless:      cfg.Headless,
	}
}

// StartSweep launches a periodic goroutine evicting session files older
// than the configured max age. Only the first call starts a goroutine; it
// stops when ctx is cancelled or when Close is called.
func (e *Engine) StartSweep(ctx context.Context, interval time.Duration) {
	e.sweepOnce.Do(func() {
		sweepCtx, cancel := context.WithCancel(ctx)
		e.sweepCancel = cancel
		go e.sweepLoop(sweepCtx, interval)
	})
}

func (e *Engine) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.sweepSessions(); err != nil {
				e.logger.Error("browserengine: session sweep failed", "error", err)
			}
		}
	}
}

func (e *Engine) sweepSessions() error {
	if e.sessionDir == "" {
		return nil
	}
	entries, err := os.ReadDir(e.sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-e.sessionMaxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(e.sessionDir, entry.Name()))
		}
	}
	return nil
}

func (e *Engine) ensureBrowser() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}
	controlURL, err := launcher.New().Headless(e.headless).Launch()
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindConfig, sourceName, fmt.Errorf("launch browser: %w", err))
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindConfig, sourceName, fmt.Errorf("connect browser: %w", err))
	}
	e.browser = browser
	return browser, nil
}

// Close shuts down the browser process and stops the sweep goroutine.
func (e *Engine) Close() error {
	if e.sweepCancel != nil {
		e.sweepCancel()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	return err
}

// acquireSlot blocks (via the rate limiter's browser bucket) until a pool
// slot is free, then reserves it. release() must be called on every path
// out, including panics, to avoid leaking the slot.
func (e *Engine) acquireSlot(ctx context.Context) (release func(), err error) {
	if err := e.limiter.Acquire(ctx, ratelimiter.EndpointBrowser); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
	}

	for {
		e.mu.Lock()
		if e.inUse < e.maxContexts {
			e.inUse++
			e.mu.Unlock()
			break
		}
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, discoveryerr.New(discoveryerr.KindCancelled, sourceName, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		e.mu.Lock()
		e.inUse--
		e.mu.Unlock()
	}, nil
}

// Execute runs a workflow to completion, streaming extracted records onto
// the returned channel. The pool slot is released and the context closed
// before the channel closes, on every exit path (including a panic inside
// step execution, which is recovered into a FAILED step result).
func (e *Engine) Execute(ctx context.Context, workflow Workflow, keywords []string) (<-chan StepResult, error) {
	out := make(chan StepResult)
	go e.run(ctx, workflow, keywords, out)
	return out, nil
}

func (e *Engine) run(ctx context.Context, workflow Workflow, keywords []string, out chan<- StepResult) {
	defer close(out)

	release, err := e.acquireSlot(ctx)
	if err != nil {
		out <- StepResult{Status: StepFailed, Err: err}
		return
	}
	defer release()

	browser, err := e.ensureBrowser()
	if err != nil {
		out <- StepResult{Status: StepFailed, Err: err}
		return
	}

	incognito, err := browser.Incognito()
	if err != nil {
		out <- StepResult{Status: StepFailed, Err: discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)}
		return
	}
	defer func() { _ = incognito.Close() }()

	page, err := e.newPage(incognito, workflow)
	if err != nil {
		out <- StepResult{Status: StepFailed, Err: err}
		return
	}
	defer func() { _ = page.Close() }()

	e.executeSteps(ctx, page, workflow, keywords, out)
}

func (e *Engine) newPage(incognito *rod.Browser, workflow Workflow) (page *rod.Page, err error) {
	page, err = incognito.Page(proto.TargetCreateTarget{URL: workflow.StartURL})
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, fmt.Errorf("open page: %w", err))
	}

	viewport := viewports[rand.Intn(len(viewports))]
	_ = proto.EmulationSetDeviceMetricsOverride{
		Width: viewport.Width, Height: viewport.Height, DeviceScaleFactor: 1,
	}.Call(page)
	_ = proto.NetworkSetUserAgentOverride{UserAgent: userAgents[rand.Intn(len(userAgents))]}.Call(page)

	if workflow.SessionID != "" {
		if err := e.loadSession(page, workflow.SessionID); err != nil {
			e.logger.Debug("browserengine: session load failed, continuing clean", "session_id", workflow.SessionID, "error", err)
		}
	}
	return page, nil
}

func (e *Engine) executeSteps(ctx context.Context, page *rod.Page, workflow Workflow, keywords []string, out chan<- StepResult) {
	defer func() {
		if r := recover(); r != nil {
			out <- StepResult{Status: StepFailed, Err: discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, fmt.Errorf("panic during step execution: %v", r))}
		}
	}()

	for _, step := range workflow.Steps {
		result := e.runStepWithRetry(ctx, page, step, keywords)
		select {
		case out <- result:
		case <-ctx.Done():
			return
		}
		if result.Status == StepFailed {
			return
		}
	}

	if workflow.SessionID != "" {
		if err := e.saveSession(page, workflow.SessionID); err != nil {
			e.logger.Debug("browserengine: session save failed", "session_id", workflow.SessionID, "error", err)
		}
	}
}

func (e *Engine) runStepWithRetry(ctx context.Context, page *rod.Page, step Step, keywords []string) StepResult {
	var result StepResult
	attempt := 0
	for attempt < maxStepRetry {
		attempt++
		randomDelay()
		records, err := e.runStep(ctx, page, step, keywords)
		if err == nil {
			return StepResult{Step: step, Status: StepSucceeded, Records: records}
		}
		result = StepResult{Step: step, Status: StepFailed, Err: err}
		if !discoveryerr.IsRetryable(err) {
			return result
		}
		select {
		case <-time.After(e.retry.Delay(attempt)):
		case <-ctx.Done():
			return StepResult{Step: step, Status: StepFailed, Err: discoveryerr.New(discoveryerr.KindCancelled, sourceName, ctx.Err())}
		}
	}
	return result
}

func randomDelay() {
	ms := 500 + rand.Intn(2500)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (e *Engine) runStep(ctx context.Context, page *rod.Page, step Step, keywords []string) ([]map[string]any, error) {
	p := page.Context(ctx)
	switch step.Kind {
	case StepNavigate:
		if err := p.Navigate(step.Value); err != nil {
			return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
		}
		return nil, nil
	case StepType:
		el, err := p.Element(step.Selector)
		if err != nil {
			return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
		}
		value := step.Value
		if step.Parameterized {
			value = joinKeywords(keywords)
		}
		if err := el.Input(value); err != nil {
			return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
		}
		return nil, nil
	case StepClick:
		el, err := p.Element(step.Selector)
		if err != nil {
			return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
		}
		return nil, nil
	case StepWait:
		wait := time.Duration(step.WaitMs) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, discoveryerr.New(discoveryerr.KindCancelled, sourceName, ctx.Err())
		}
		return nil, nil
	case StepExtract:
		return e.extract(p, step)
	default:
		return nil, discoveryerr.New(discoveryerr.KindConfig, sourceName, fmt.Errorf("unknown step kind %q", step.Kind))
	}
}

func (e *Engine) extract(page *rod.Page, step Step) ([]map[string]any, error) {
	elements, err := page.Elements(step.Selector)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	records := make([]map[string]any, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			continue
		}
		href, _ := el.Attribute("href")
		record := map[string]any{"text": text}
		if href != nil {
			record["href"] = *href
		}
		records = append(records, record)
	}
	return records, nil
}

func joinKeywords(keywords []string) string {
	out := ""
	for i, k := range keywords {
		if i > 0 {
			out += " "
		}
		out += k
	}
	return out
}

// NewSessionID generates a fresh session identifier for save_session callers.
func NewSessionID() string { return uuid.NewString() }

type savedSession struct {
	Cookies      []*proto.NetworkCookieParam `json:"cookies"`
	LocalStorage map[string]string           `json:"local_storage"`
}

func (e *Engine) saveSession(page *rod.Page, sessionID string) error {
	if e.sessionDir == "" {
		return nil
	}
	cookiesRes, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return err
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookiesRes.Cookies))
	for _, c := range cookiesRes.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Expires: c.Expires, HTTPOnly: c.HTTPOnly, Secure: c.Secure, SameSite: c.SameSite,
		})
	}

	local := snapshotLocalStorage(page)
	data, err := json.MarshalIndent(savedSession{Cookies: params, LocalStorage: local}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.sessionDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.sessionDir, sessionPrefix+sessionID+".json"), data, 0o644)
}

func (e *Engine) loadSession(page *rod.Page, sessionID string) error {
	if e.sessionDir == "" {
		return fmt.Errorf("no session directory configured")
	}
	data, err := os.ReadFile(filepath.Join(e.sessionDir, sessionPrefix+sessionID+".json"))
	if err != nil {
		return err
	}
	var saved savedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return err
	}
	if len(saved.Cookies) > 0 {
		if err := page.SetCookies(saved.Cookies); err != nil {
			return err
		}
	}
	restoreLocalStorage(page, saved.LocalStorage)
	return nil
}

func snapshotLocalStorage(page *rod.Page) map[string]string {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const out = {};
			for (const key of Object.keys(localStorage)) { out[key] = localStorage.getItem(key); }
			return out;
		}`,
		ByValue: true,
	})
	if err != nil || res == nil {
		return nil
	}
	var out map[string]string
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func restoreLocalStorage(page *rod.Page, values map[string]string) {
	if len(values) == 0 {
		return
	}
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `(entries) => { for (const [k, v] of Object.entries(entries)) { localStorage.setItem(k, v); } }`,
		JSArgs:  []any{values},
		ByValue: true,
	})
}
