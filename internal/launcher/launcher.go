package launcher

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/screenbridge/hostcore/internal/errs"
)

// pushTimeout bounds both the agent binary push and the chmod that
// follows it.
const pushTimeout = 10 * time.Second

// StartOptions configures one agent invocation, translated verbatim
// into the key=value argv pairs the agent's "start" command expects
// (§6). The core treats the key set as opaque pass-through.
type StartOptions struct {
	Serial              string
	SessionID           string
	LogLevel            string
	BitRate             int
	MaxFPS              int
	MaxSize             int
	LockVideoOrientation int
	TunnelForward       bool
	Control             bool
	Audio               bool
	VideoCodec          string
	AudioCodec          string
	ClipboardAutosync   bool
	StayAwake           bool
	ShowTouches         bool
	PowerOffOnClose     bool
	Cleanup             bool
}

// recognizedStatusPrefixes are the agent stdout line prefixes relayed
// as status rather than swallowed (§4.3).
var recognizedStatusPrefixes = []string{"INFO:", "WARN:", "[server]"}

// Launcher pushes the agent binary and drives the debug tool's "start"
// invocation for one device.
type Launcher struct {
	adb           *Client
	agentPushPath string

	mu      sync.Mutex
	running map[string]*exec.Cmd
}

// New creates a Launcher using adb; PushAgent copies the agent binary
// to agentPushPath on the device and Start launches it from there.
func New(adb *Client, agentPushPath string) *Launcher {
	return &Launcher{
		adb:           adb,
		agentPushPath: agentPushPath,
		running:       make(map[string]*exec.Cmd),
	}
}

// argv builds the agent's key=value start arguments, bit-exact to its
// schema (§6). Every boolean field is always included, as key=true or
// key=false; audio_codec is the only key that is present only when
// audio is enabled.
func (o StartOptions) argv() []string {
	args := []string{
		fmt.Sprintf("scid=%s", o.SessionID),
		fmt.Sprintf("log_level=%s", o.LogLevel),
		fmt.Sprintf("bit_rate=%d", o.BitRate),
		fmt.Sprintf("max_fps=%d", o.MaxFPS),
		fmt.Sprintf("max_size=%d", o.MaxSize),
		fmt.Sprintf("lock_video_orientation=%d", o.LockVideoOrientation),
		fmt.Sprintf("video_codec=%s", o.VideoCodec),
	}
	if o.Audio {
		args = append(args, fmt.Sprintf("audio_codec=%s", o.AudioCodec))
	}
	args = append(args,
		fmt.Sprintf("tunnel_forward=%t", o.TunnelForward),
		fmt.Sprintf("control=%t", o.Control),
		fmt.Sprintf("audio=%t", o.Audio),
		fmt.Sprintf("clipboard_autosync=%t", o.ClipboardAutosync),
		fmt.Sprintf("stay_awake=%t", o.StayAwake),
		fmt.Sprintf("show_touches=%t", o.ShowTouches),
		fmt.Sprintf("power_off_on_close=%t", o.PowerOffOnClose),
		fmt.Sprintf("cleanup=%t", o.Cleanup),
	)
	return args
}

// PushAgent pushes the local agent binary and grants it execute
// permission on the device.
func (l *Launcher) PushAgent(ctx context.Context, serial, localAgentPath string) error {
	if err := l.adb.Push(ctx, pushTimeout, serial, localAgentPath, l.agentPushPath); err != nil {
		return fmt.Errorf("launcher: push agent: %w", err)
	}
	if _, err := l.adb.Shell(ctx, pushTimeout, serial, "chmod", "755", l.agentPushPath); err != nil {
		return fmt.Errorf("launcher: chmod agent: %w", err)
	}
	return nil
}

// Start launches the agent with opts and forwards its recognized stdout
// lines to onStatus. It returns once the process has been started; the
// caller is notified of process exit via onExit (nonzero exit or a
// process error is always fatal to the enclosing session, per §4.3).
func (l *Launcher) Start(opts StartOptions, onStatus func(string), onExit func(error)) error {
	args := append([]string{"-s", opts.Serial, "shell", l.agentPushPath}, opts.argv()...)
	cmd := exec.Command(l.adb.BinaryPath, args...)
	if l.adb.BinaryPath == "" {
		path, err := l.adb.Resolve()
		if err != nil {
			return err
		}
		cmd = exec.Command(path, args...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("launcher: stdout pipe: %w", err)
	}
	stderrBuf := &limitBuffer{limit: maxOutputSize}
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: launcher: start agent: %v", errs.ErrTransientConnect, err)
	}

	l.mu.Lock()
	l.running[opts.Serial] = cmd
	l.mu.Unlock()

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			for _, prefix := range recognizedStatusPrefixes {
				if strings.HasPrefix(line, prefix) {
					onStatus(line)
					break
				}
			}
		}
	}()

	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		delete(l.running, opts.Serial)
		l.mu.Unlock()

		if err != nil {
			onExit(fmt.Errorf("%w: agent exited: %v (stderr: %s)", errs.ErrTransientConnect, err, stderrBuf.String()))
			return
		}
		onExit(fmt.Errorf("%w: agent exited unexpectedly", errs.ErrTransientConnect))
	}()

	return nil
}

// Stop kills the agent process for serial, including any children in
// its process group.
func (l *Launcher) Stop(serial string) {
	l.mu.Lock()
	cmd, ok := l.running[serial]
	l.mu.Unlock()
	if !ok {
		return
	}
	killProcessGroup(cmd)
}

type limitBuffer struct {
	mu      sync.Mutex
	data    []byte
	limit   int
}

func (b *limitBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) >= b.limit {
		return len(p), nil
	}
	remaining := b.limit - len(b.data)
	if len(p) > remaining {
		p = p[:remaining]
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *limitBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
