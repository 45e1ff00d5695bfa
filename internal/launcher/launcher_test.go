package launcher

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/screenbridge/hostcore/internal/errs"
)

func writeExecutable(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o755)
}

func TestStartOptionsArgvSchema(t *testing.T) {
	opts := StartOptions{
		SessionID:            "abcd1234",
		LogLevel:             "info",
		BitRate:              8_000_000,
		MaxFPS:               60,
		MaxSize:              0,
		LockVideoOrientation: -1,
		TunnelForward:        true,
		Control:              true,
		Audio:                true,
		VideoCodec:           "h264",
		AudioCodec:           "opus",
		ClipboardAutosync:    true,
		StayAwake:            false,
		ShowTouches:          false,
		PowerOffOnClose:      false,
		Cleanup:              true,
	}

	argv := opts.argv()
	joined := strings.Join(argv, " ")

	for _, want := range []string{
		"scid=abcd1234",
		"log_level=info",
		"bit_rate=8000000",
		"max_fps=60",
		"max_size=0",
		"lock_video_orientation=-1",
		"video_codec=h264",
		"audio_codec=opus",
		"tunnel_forward=true",
		"control=true",
		"audio=true",
		"clipboard_autosync=true",
		"stay_awake=false",
		"show_touches=false",
		"power_off_on_close=false",
		"cleanup=true",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("argv %q missing %q", joined, want)
		}
	}
}

func TestStartOptionsArgvOmitsAudioCodecWhenAudioDisabled(t *testing.T) {
	opts := StartOptions{Audio: false, AudioCodec: "opus"}
	argv := opts.argv()
	for _, a := range argv {
		if strings.HasPrefix(a, "audio_codec=") {
			t.Fatalf("expected audio_codec to be omitted, got %q", a)
		}
	}
}

// fakeAdbScript lets tests point a Client at a short shell script
// standing in for the real debug tool binary.
func fakeAdbScript(t *testing.T, script string) string {
	t.Helper()
	path := t.TempDir() + "/fakeadb.sh"
	if err := writeExecutable(path, "#!/bin/sh\n"+script+"\n"); err != nil {
		t.Fatalf("write fake adb script: %v", err)
	}
	return path
}

func TestLauncherStartRelaysRecognizedStdoutLines(t *testing.T) {
	script := fakeAdbScript(t, `
echo "INFO: starting agent"
echo "noise line, should be ignored"
echo "[server] listening on 8886"
sleep 0.05
exit 0
`)

	l := New(NewClient(script), "/data/local/tmp/agent.bin")

	var mu sync.Mutex
	var statuses []string
	exitCh := make(chan error, 1)

	err := l.Start(StartOptions{Serial: "emulator-5554", VideoCodec: "h264", LogLevel: "info"},
		func(line string) {
			mu.Lock()
			statuses = append(statuses, line)
			mu.Unlock()
		},
		func(exitErr error) { exitCh <- exitErr },
	)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case exitErr := <-exitCh:
		if exitErr == nil {
			t.Fatal("expected exit to be reported as an error per §4.3 (exit is always fatal)")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent exit notification")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 recognized status lines, got %d: %v", len(statuses), statuses)
	}
	if statuses[0] != "INFO: starting agent" || statuses[1] != "[server] listening on 8886" {
		t.Fatalf("unexpected status lines: %v", statuses)
	}
}

func TestLauncherStartNonZeroExitIsFatal(t *testing.T) {
	script := fakeAdbScript(t, `
echo "INFO: starting agent"
exit 7
`)

	l := New(NewClient(script), "/data/local/tmp/agent.bin")
	exitCh := make(chan error, 1)

	err := l.Start(StartOptions{Serial: "emulator-5554"}, func(string) {}, func(exitErr error) {
		exitCh <- exitErr
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case exitErr := <-exitCh:
		if !errors.Is(exitErr, errs.ErrTransientConnect) {
			t.Fatalf("expected ErrTransientConnect, got %v", exitErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit notification")
	}
}

func TestClientPairSucceedsOnRecognizedOutput(t *testing.T) {
	script := fakeAdbScript(t, `
if [ "$1" = "pair" ]; then
  cat > /dev/null
  echo "Successfully paired to 192.168.1.5:5555"
  exit 0
fi
`)

	c := NewClient(script)
	if err := c.Pair(context.Background(), "192.168.1.5:37251", "123456"); err != nil {
		t.Fatalf("Pair: %v", err)
	}
}

func TestClientPairFailsOnUnrecognizedOutput(t *testing.T) {
	script := fakeAdbScript(t, `
if [ "$1" = "pair" ]; then
  cat > /dev/null
  echo "Failed: Wrong pairing code"
  exit 1
fi
`)

	c := NewClient(script)
	err := c.Pair(context.Background(), "192.168.1.5:37251", "000000")
	if err == nil {
		t.Fatal("expected pairing failure")
	}
	if !errors.Is(err, errs.ErrCommandFailure) {
		t.Fatalf("expected ErrCommandFailure, got %v", err)
	}
}

func TestClientConnectRecognizesAlreadyConnected(t *testing.T) {
	script := fakeAdbScript(t, `
if [ "$1" = "connect" ]; then
  echo "already connected to 192.168.1.5:5555"
  exit 0
fi
`)

	c := NewClient(script)
	if err := c.Connect(context.Background(), "192.168.1.5:5555"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}
