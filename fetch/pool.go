package fetch

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// pageHandle wraps a pooled rod.Page with health tracking, the same
// error-score/use-count/age retirement policy the original adaptive page
// pool used, generalized from "page of a racing engine" to "browser
// context of the routed headless_browser fetcher."
type pageHandle struct {
	page     *rod.Page
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func (h *pageHandle) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *pageHandle) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

func (h *pageHandle) shouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= 3.0 || h.useCount >= 50 || time.Since(h.created) >= 50*time.Minute
}

// BrowserPoolConfig controls BrowserPool sizing and scaling.
type BrowserPoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64
	ScaleStep    float64
	Headless     bool
	NoSandbox    bool
	BrowserBin   string
}

// BrowserPool manages a pool of browser-context pages, scaling on memory
// pressure and utilization and restarting the whole browser process if
// crashes exceed a threshold within a window, per §4.4.2's "context crash
// count exceeds 3 within a minute" rule.
type BrowserPool struct {
	cfg     BrowserPoolConfig
	browser *rod.Browser
	launch  *launcher.Launcher

	idle    chan *pageHandle
	mu      sync.Mutex
	all     map[*rod.Page]*pageHandle
	active  atomic.Int32
	stopped chan struct{}

	crashMu    sync.Mutex
	crashTimes []time.Time
	restarting atomic.Bool
}

// NewBrowserPool launches a browser and pre-creates MinPages contexts.
func NewBrowserPool(cfg BrowserPoolConfig) (*BrowserPool, error) {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.HardMax < cfg.MinPages {
		cfg.HardMax = cfg.MinPages
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}

	p := &BrowserPool{
		cfg:     cfg,
		idle:    make(chan *pageHandle, cfg.HardMax),
		all:     make(map[*rod.Page]*pageHandle),
		stopped: make(chan struct{}),
	}

	if err := p.launchBrowser(); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.MinPages; i++ {
		h, err := p.createHandle()
		if err != nil {
			slog.Warn("fetch: failed to pre-create browser page", "error", err)
			continue
		}
		p.idle <- h
	}

	go p.scalingLoop()
	return p, nil
}

func (p *BrowserPool) launchBrowser() error {
	l := launcher.New().Headless(p.cfg.Headless)
	if p.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if p.cfg.BrowserBin != "" {
		l = l.Bin(p.cfg.BrowserBin)
	}
	u, err := l.Launch()
	if err != nil {
		return err
	}
	p.launch = l
	p.browser = rod.New().ControlURL(u)
	return p.browser.Connect()
}

// Get checks out a page handle, creating one if under the hard max, else
// blocking until one is returned.
func (p *BrowserPool) Get() (*pageHandle, error) {
	select {
	case h := <-p.idle:
		p.active.Add(1)
		return h, nil
	default:
	}

	p.mu.Lock()
	if len(p.all) < p.cfg.HardMax {
		h, err := p.createHandleLocked()
		p.mu.Unlock()
		if err == nil {
			p.active.Add(1)
			return h, nil
		}
	} else {
		p.mu.Unlock()
	}

	select {
	case h := <-p.idle:
		p.active.Add(1)
		return h, nil
	case <-p.stopped:
		return nil, context.Canceled
	}
}

// Put returns a handle, retiring it if it has crashed or aged out, and
// triggers a full browser restart if crashes cluster within a minute.
func (p *BrowserPool) Put(h *pageHandle, success bool) {
	p.active.Add(-1)

	if success {
		h.recordSuccess()
	} else {
		h.recordFailure()
		p.noteCrash()
	}

	if h.shouldRetire() {
		p.destroyHandle(h)
		p.mu.Lock()
		if len(p.all) < p.cfg.MinPages && !p.restarting.Load() {
			if newH, err := p.createHandleLocked(); err == nil {
				p.mu.Unlock()
				p.idle <- newH
				return
			}
		}
		p.mu.Unlock()
		return
	}

	p.idle <- h
}

// noteCrash records a failure timestamp and restarts the whole browser
// process once more than 3 failures land within a one-minute window.
func (p *BrowserPool) noteCrash() {
	p.crashMu.Lock()
	now := time.Now()
	p.crashTimes = append(p.crashTimes, now)
	cutoff := now.Add(-time.Minute)
	fresh := p.crashTimes[:0]
	for _, t := range p.crashTimes {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	p.crashTimes = fresh
	shouldRestart := len(p.crashTimes) > 3 && p.restarting.CompareAndSwap(false, true)
	p.crashMu.Unlock()

	if shouldRestart {
		go p.restart()
	}
}

func (p *BrowserPool) restart() {
	defer p.restarting.Store(false)
	slog.Warn("fetch: restarting browser process after repeated context crashes")

	p.mu.Lock()
	for page, h := range p.all {
		_ = page.Close()
		_ = h
		delete(p.all, page)
	}
	p.mu.Unlock()

drain:
	for {
		select {
		case h := <-p.idle:
			_ = h.page.Close()
		default:
			break drain
		}
	}

	if p.browser != nil {
		_ = p.browser.Close()
	}
	if p.launch != nil {
		p.launch.Cleanup()
	}

	if err := p.launchBrowser(); err != nil {
		slog.Error("fetch: browser restart failed", "error", err)
		return
	}
	for i := 0; i < p.cfg.MinPages; i++ {
		if h, err := p.createHandle(); err == nil {
			p.idle <- h
		}
	}
}

func (p *BrowserPool) createHandle() (*pageHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createHandleLocked()
}

func (p *BrowserPool) createHandleLocked() (*pageHandle, error) {
	page, err := p.browser.Page(emptyTargetOpts())
	if err != nil {
		return nil, err
	}
	h := &pageHandle{page: page, created: time.Now()}
	p.all[page] = h
	return h, nil
}

// emptyTargetOpts requests a blank page; the caller navigates it to the
// real target URL itself so the fetcher controls timeout and wait policy.
func emptyTargetOpts() proto.TargetCreateTarget {
	return proto.TargetCreateTarget{}
}

func (p *BrowserPool) destroyHandle(h *pageHandle) {
	p.mu.Lock()
	delete(p.all, h.page)
	p.mu.Unlock()
	_ = h.page.Close()
}

// Stop shuts down the scaling loop and closes every tracked page.
func (p *BrowserPool) Stop() {
	close(p.stopped)
drain:
	for {
		select {
		case h := <-p.idle:
			p.destroyHandle(h)
		default:
			break drain
		}
	}
	p.mu.Lock()
	for _, h := range p.all {
		_ = h.page.Close()
	}
	p.mu.Unlock()
	if p.browser != nil {
		_ = p.browser.Close()
	}
	if p.launch != nil {
		p.launch.Cleanup()
	}
}

func (p *BrowserPool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			p.scaleCheck()
		}
	}
}

func (p *BrowserPool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	p.mu.Lock()
	total := len(p.all)
	p.mu.Unlock()
	active := int(p.active.Load())
	var activeRate float64
	if total > 0 {
		activeRate = float64(active) / float64(total)
	}

	if memPressure > p.cfg.MemThreshold {
		shrinkCount := int(math.Ceil(float64(total) * p.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			p.mu.Lock()
			if len(p.all) <= p.cfg.MinPages {
				p.mu.Unlock()
				break
			}
			p.mu.Unlock()
			select {
			case h := <-p.idle:
				p.destroyHandle(h)
			default:
				return
			}
		}
	} else if activeRate > 0.8 {
		growCount := int(math.Ceil(float64(total) * p.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			p.mu.Lock()
			if len(p.all) >= p.cfg.HardMax {
				p.mu.Unlock()
				break
			}
			h, err := p.createHandleLocked()
			p.mu.Unlock()
			if err != nil {
				break
			}
			p.idle <- h
		}
	}
}
