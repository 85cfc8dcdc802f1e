package watcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// Notifier delivers alerts as desktop notifications. Alerts it cannot hand
// to the desktop are written as one line to Fallback.
type Notifier struct {
	GOOS     string
	LookPath func(file string) (string, error)
	Run      func(name string, args ...string) error
	Fallback io.Writer
}

// DesktopNotifier returns a Notifier for the running platform.
func DesktopNotifier() Notifier {
	return Notifier{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		Run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
		Fallback: os.Stderr,
	}
}

// Notify sends alert through the platform's desktop notifier: osascript on
// macOS and notify-send on Linux.
func Notify(alert Alert) error {
	return DesktopNotifier().Send(alert)
}

// Send delivers alert, falling back to a plain line when no notifier is
// installed or it fails.
func (n Notifier) Send(alert Alert) error {
	name, args, ok := n.command(alert)
	if !ok {
		return n.fallback(alert)
	}
	if _, err := n.LookPath(name); err != nil {
		return n.fallback(alert)
	}
	if err := n.Run(name, args...); err != nil {
		return n.fallback(alert)
	}
	return nil
}

func (n Notifier) command(alert Alert) (string, []string, bool) {
	switch n.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q subtitle %q`,
			alert.Message, heading(alert), alert.Title)
		return "osascript", []string{"-e", script}, true
	case "linux":
		return "notify-send", []string{
			"--app-name=callwatch",
			"--urgency=" + urgency(alert.Level),
			heading(alert) + ": " + alert.Title,
			alert.Message,
		}, true
	}
	return "", nil, false
}

func (n Notifier) fallback(alert Alert) error {
	w := n.Fallback
	if w == nil {
		w = os.Stderr
	}
	_, err := fmt.Fprintf(w, "%s [%s] %s: %s\n", alertTime(alert).Format("15:04:05"), alert.Level, alert.Title, alert.Message)
	return err
}

// heading names the job an alert concerns so stacked notifications from
// several version/profile pairs stay apart.
func heading(alert Alert) string {
	if alert.Job == "" {
		return "callwatch"
	}
	return "callwatch " + alert.Job
}

func urgency(level string) string {
	switch level {
	case "critical":
		return "critical"
	case "info":
		return "low"
	}
	return "normal"
}
