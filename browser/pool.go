// Package browser manages a small pool of headless Chrome processes, each
// fronted by a CDP client, used to back the gateway's browser.* methods.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nevindra/clawgate/cdp"

	oasis "github.com/nevindra/clawgate"
)

const (
	baseDebugPort  = 9222
	versionTimeout = 200 * time.Millisecond
	versionRetries = 10
)

// Instance is one launched Chrome process and its CDP connection.
type Instance struct {
	ID          string
	DebugPort   int
	UserDataDir string
	CDP         *cdp.Client

	mu       sync.Mutex
	cmd      *exec.Cmd
	idle     bool
	lastUsed time.Time
}

// IsIdle reports whether the instance is currently checked in to the pool.
func (inst *Instance) IsIdle() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.idle
}

// Pool allocates, reuses, and tears down Chrome instances. acquire may block
// the caller while a new process starts; all CDP traffic after that is
// asynchronous, per SPEC_FULL.md §4.4.
type Pool struct {
	mu        sync.Mutex
	instances []*Instance
	size      int
	chromeBin string
	nextPort  atomic.Int32
	counter   atomic.Int64
}

// NewPool creates a pool capped at size concurrent instances. chromeBin, if
// non-empty, is used verbatim instead of probing well-known paths.
func NewPool(size int, chromeBin string) *Pool {
	if size <= 0 {
		size = 4
	}
	p := &Pool{size: size, chromeBin: chromeBin}
	p.nextPort.Store(baseDebugPort)
	return p
}

// Acquire reuses an idle instance or launches a new Chrome process if the
// pool has room. Returns BrowserError on launch failure, RateLimited if the
// pool is already at capacity with nothing idle.
func (p *Pool) Acquire(ctx context.Context) (*Instance, *oasis.Error) {
	p.mu.Lock()
	for _, inst := range p.instances {
		if inst.IsIdle() {
			inst.mu.Lock()
			inst.idle = false
			inst.mu.Unlock()
			p.mu.Unlock()
			return inst, nil
		}
	}
	if len(p.instances) >= p.size {
		p.mu.Unlock()
		return nil, oasis.NewRateLimited("browser pool exhausted", fmt.Sprintf("size=%d", p.size))
	}
	p.mu.Unlock()

	inst, err := p.launch(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.instances = append(p.instances, inst)
	p.mu.Unlock()
	return inst, nil
}

// Get returns the live instance with the given ID, if any is still open.
func (p *Pool) Get(id string) (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return nil, false
}

// Release marks inst idle and records its last-used time for future reuse.
func (p *Pool) Release(inst *Instance) {
	inst.mu.Lock()
	inst.idle = true
	inst.lastUsed = time.Now()
	inst.mu.Unlock()
}

// Close disconnects CDP, signals the child process to terminate, reaps it,
// and removes inst from the pool.
func (p *Pool) Close(id string) *oasis.Error {
	p.mu.Lock()
	var target *Instance
	remaining := p.instances[:0]
	for _, inst := range p.instances {
		if inst.ID == id {
			target = inst
			continue
		}
		remaining = append(remaining, inst)
	}
	p.instances = remaining
	p.mu.Unlock()

	if target == nil {
		return oasis.NewNotFound("browser instance not found", id)
	}
	p.teardown(target)
	return nil
}

// CloseAll tears down every instance, for use on gateway shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	instances := p.instances
	p.instances = nil
	p.mu.Unlock()

	for _, inst := range instances {
		p.teardown(inst)
	}
}

func (p *Pool) teardown(inst *Instance) {
	if inst.CDP != nil {
		inst.CDP.Disconnect()
	}
	inst.mu.Lock()
	cmd := inst.cmd
	inst.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	if inst.UserDataDir != "" {
		_ = os.RemoveAll(inst.UserDataDir)
	}
}

func (p *Pool) launch(ctx context.Context) (*Instance, *oasis.Error) {
	bin, oerr := p.resolveChromeBinary()
	if oerr != nil {
		return nil, oerr
	}

	port := int(p.nextPort.Add(1)) - 1
	userDataDir, err := os.MkdirTemp("", "clawgate-chrome-*")
	if err != nil {
		return nil, oasis.NewBrowserError("could not create chrome user-data-dir", err.Error())
	}

	args := []string{
		"--headless=new",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-gpu",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-translate",
		"--mute-audio",
		"--no-sandbox",
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"about:blank",
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(userDataDir)
		return nil, oasis.NewBrowserError("failed to start chrome", err.Error())
	}

	wsURL, oerr := pollDebuggerURL(port)
	if oerr != nil {
		_ = cmd.Process.Kill()
		os.RemoveAll(userDataDir)
		return nil, oerr
	}

	client, gwErr := cdp.Connect(ctx, wsURL, nil)
	if gwErr != nil {
		_ = cmd.Process.Kill()
		os.RemoveAll(userDataDir)
		return nil, gwErr
	}

	for _, domain := range []string{"Page.enable", "Runtime.enable", "DOM.enable"} {
		if _, gwErr := client.SendCommand(ctx, domain, nil); gwErr != nil {
			client.Disconnect()
			_ = cmd.Process.Kill()
			os.RemoveAll(userDataDir)
			return nil, gwErr
		}
	}

	return &Instance{
		ID:          fmt.Sprintf("browser-%d", p.counter.Add(1)),
		DebugPort:   port,
		UserDataDir: userDataDir,
		CDP:         client,
		cmd:         cmd,
		idle:        false,
		lastUsed:    time.Now(),
	}, nil
}

type versionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func pollDebuggerURL(port int) (string, *oasis.Error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	var lastErr error
	for i := 0; i < versionRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			defer resp.Body.Close()
			var info versionInfo
			if decodeErr := json.NewDecoder(resp.Body).Decode(&info); decodeErr == nil && info.WebSocketDebuggerURL != "" {
				return info.WebSocketDebuggerURL, nil
			}
			lastErr = fmt.Errorf("malformed /json/version response")
		} else {
			lastErr = err
		}
		time.Sleep(versionTimeout)
	}
	return "", oasis.NewBrowserError("chrome did not become ready", fmt.Sprintf("%v", lastErr))
}

func (p *Pool) resolveChromeBinary() (string, *oasis.Error) {
	if p.chromeBin != "" {
		if _, err := os.Stat(p.chromeBin); err == nil {
			return p.chromeBin, nil
		}
	}

	for _, candidate := range wellKnownChromePaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", oasis.NewBrowserError("no chrome binary found", "configure browser.executable_path")
}

func wellKnownChromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	}
}
