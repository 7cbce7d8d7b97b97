package cli

import (
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/Paintersrp/kr/internal/engine"
)

type notifyFunc func(state string) (bool, error)

func sdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// systemdNotifier reports supervisor state to systemd when kr runs as a
// Type=notify unit. READY=1 is sent once the first child is running.
// Outside systemd the notifications are silently dropped.
type systemdNotifier struct {
	notify    notifyFunc
	readySent bool
	disabled  bool
}

func newSystemdNotifier(fn notifyFunc) *systemdNotifier {
	return &systemdNotifier{notify: fn}
}

func (n *systemdNotifier) Write(evt engine.Event) {
	if n.notify == nil || n.disabled || evt.Type == engine.EventTypeLog {
		return
	}
	var states []string
	if evt.Type == engine.EventTypeStarted && !n.readySent {
		states = append(states, daemon.SdNotifyReady)
		n.readySent = true
	}
	states = append(states, "STATUS="+evt.Message)
	if evt.Type.Terminal() {
		states = append(states, daemon.SdNotifyStopping)
	}

	sent, err := n.notify(strings.Join(states, "\n"))
	if err == nil && !sent {
		// NOTIFY_SOCKET is unset; nothing will ever be delivered.
		n.disabled = true
	}
}
