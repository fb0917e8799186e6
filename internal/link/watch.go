package link

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/logging"
)

// statusDebounce absorbs the burst of events a single truncate-and-write
// produces.
const statusDebounce = 50 * time.Millisecond

// CommandRunner runs an association command to completion.
type CommandRunner func(ctx context.Context, argv []string, env []string) error

// WatchRadio drives an external supplicant. Each association request runs
// a configured command, and link notifications are read from a status file
// that the supplicant's hooks rewrite. The last non-empty line of the file
// is interpreted by ParseStatus.
type WatchRadio struct {
	d          *dispatcher
	statusFile string
	command    []string
	run        CommandRunner
	logger     *logging.Logger

	watcher  *fsnotify.Watcher
	loopOnce sync.Once

	mu    sync.Mutex
	creds Credentials
	wg    sync.WaitGroup
}

// NewWatchRadio creates a WatchRadio publishing on bus.
func NewWatchRadio(bus *event.Bus, statusFile string, command []string, logger *logging.Logger) (*WatchRadio, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create status watcher: %w", err)
	}
	return &WatchRadio{
		d:          newDispatcher(bus),
		statusFile: filepath.Clean(statusFile),
		command:    append([]string(nil), command...),
		run:        execCommand,
		logger:     logger.WithComponent("radio").With("driver", "watch"),
		watcher:    watcher,
	}, nil
}

// Start implements Radio. The status file's directory is watched rather
// than the file itself so that atomic replace-by-rename is observed.
func (r *WatchRadio) Start(_ context.Context, creds Credentials) error {
	r.mu.Lock()
	r.creds = creds
	r.mu.Unlock()

	dir := filepath.Dir(r.statusFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	if err := r.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	r.d.start()
	r.loopOnce.Do(func() {
		r.wg.Add(1)
		go r.watchLoop()
	})

	r.logger.Debug("radio started", "status_file", r.statusFile, "ssid", creds.SSID)
	r.d.post(event.NewRadioStartedEvent(filepath.Base(r.statusFile)))
	return nil
}

// Associate implements Radio. The command runs in the background; a
// command that fails is reported as a disconnect.
func (r *WatchRadio) Associate(ctx context.Context) error {
	r.mu.Lock()
	creds := r.creds
	r.mu.Unlock()

	env := append(os.Environ(),
		"POOLMINER_SSID="+creds.SSID,
		"POOLMINER_PASSPHRASE="+creds.Passphrase,
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.run(ctx, r.command, env); err != nil {
			r.logger.Warn("associate command failed", "error", err.Error())
			r.d.post(event.NewRadioDisconnectedEvent("associate command: " + err.Error()))
		}
	}()
	return nil
}

func (r *WatchRadio) watchLoop() {
	defer r.wg.Done()

	debounce := time.NewTimer(0)
	<-debounce.C
	pending := false

	for {
		select {
		case <-r.d.stopCh:
			debounce.Stop()
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.statusFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			debounce.Reset(statusDebounce)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			r.readStatus()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("status watcher error", "error", err.Error())
		}
	}
}

func (r *WatchRadio) readStatus() {
	line, err := lastLine(r.statusFile)
	if err != nil {
		r.logger.Warn("failed to read status file", "error", err.Error())
		return
	}
	ev, ok := ParseStatus(line)
	if !ok {
		if line != "" {
			r.logger.Debug("ignoring status line", "line", line)
		}
		return
	}
	r.d.post(ev)
}

// Close stops the watcher and waits for background work to finish.
func (r *WatchRadio) Close() error {
	r.d.stop()
	err := r.watcher.Close()
	r.wg.Wait()
	return err
}

// ParseStatus interprets one status line:
//
//	CONNECTED <address>     (aliases: UP, GOT_IP)
//	DISCONNECTED [reason]   (alias: DOWN)
//
// Keywords are case-insensitive. Anything else is ignored.
func ParseStatus(line string) (event.Event, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}

	switch strings.ToUpper(fields[0]) {
	case "CONNECTED", "UP", "GOT_IP":
		addr := ""
		if len(fields) > 1 {
			addr = fields[1]
		}
		return event.NewRadioGotAddressEvent(addr), true
	case "DISCONNECTED", "DOWN":
		return event.NewRadioDisconnectedEvent(strings.Join(fields[1:], " ")), true
	default:
		return nil, false
	}
}

func lastLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	last := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			last = s
		}
	}
	return last, scanner.Err()
}

func execCommand(ctx context.Context, argv []string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no associate command configured")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
