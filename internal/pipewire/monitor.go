// Package pipewire watches the PipeWire registry for announced objects.
//
// The registry is read through the pw-dump tool running as a subprocess,
// which avoids linking libpipewire through CGO.
package pipewire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/tidwall/gjson"
)

// KeyNodeName is the property carrying a node's name
const KeyNodeName = "node.name"

// stopWaitDelay bounds how long Wait blocks on output pipes held open by
// descendants that left the process group
const stopWaitDelay = 200 * time.Millisecond

// Object is a global announced by the PipeWire registry
type Object struct {
	ID    uint32
	Type  string
	Props map[string]string
}

// Monitor reports registry objects as they become available
type Monitor interface {
	// Watch calls onObject for every announced object until stop is closed
	// or the registry stream ends. It returns nil only when stopped.
	Watch(stop <-chan struct{}, onObject func(Object)) error
}

// DumpMonitor implements Monitor with `pw-dump --monitor`
type DumpMonitor struct {
	command string
	args    []string
}

// NewDumpMonitor creates a monitor running command with args
func NewDumpMonitor(command string, args ...string) *DumpMonitor {
	return &DumpMonitor{
		command: command,
		args:    args,
	}
}

// Watch runs the dump subprocess and decodes its output until stop is closed
func (m *DumpMonitor) Watch(stop <-chan struct{}, onObject func(Object)) error {
	log := logger.WithComponent("pipewire-monitor")

	// The command may be a wrapper (sh -c, flatpak-spawn) whose children
	// share stdout, so it runs in its own process group and is stopped as one.
	cmd := exec.Command(m.command, m.args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = stopWaitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	cmd.Stderr = log.With().Str("stream", "stderr").Logger()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", m.command, err)
	}
	log.Debug().Str("command", m.command).Int("pid", cmd.Process.Pid).Msg("Registry monitor started")

	decoded := make(chan error, 1)
	go func() {
		decoded <- Decode(stdout, onObject)
	}()

	select {
	case <-stop:
		log.Debug().Int("pid", cmd.Process.Pid).Msg("Stopping registry monitor")
		killGroup(cmd)
		stdout.Close()
		<-decoded
		cmd.Wait()
		return nil
	case err := <-decoded:
		waitErr := cmd.Wait()
		if err != nil {
			return err
		}
		if waitErr != nil {
			return fmt.Errorf("%s exited: %w", m.command, waitErr)
		}
		return fmt.Errorf("%s exited", m.command)
	}
}

// killGroup kills the process group led by cmd, falling back to the process
func killGroup(cmd *exec.Cmd) {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}

// Decode reads the stream of JSON arrays pw-dump prints and reports every
// object that carries info. Removed objects (null info) are skipped.
func Decode(r io.Reader, onObject func(Object)) error {
	dec := json.NewDecoder(r)
	for {
		var batch []json.RawMessage
		if err := dec.Decode(&batch); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode registry dump: %w", err)
		}
		for _, raw := range batch {
			if obj, ok := parseObject(raw); ok {
				onObject(obj)
			}
		}
	}
}

func parseObject(raw []byte) (Object, bool) {
	res := gjson.ParseBytes(raw)

	id := res.Get("id")
	if !id.Exists() {
		return Object{}, false
	}
	info := res.Get("info")
	if !info.Exists() || info.Type == gjson.Null {
		return Object{}, false
	}

	props := info.Get("props")
	if !props.Exists() {
		props = res.Get("props")
	}

	obj := Object{
		ID:    uint32(id.Uint()),
		Type:  res.Get("type").String(),
		Props: make(map[string]string),
	}
	props.ForEach(func(key, value gjson.Result) bool {
		obj.Props[key.String()] = value.String()
		return true
	})
	return obj, true
}
