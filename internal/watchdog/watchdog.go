// Package watchdog periodically reports limbo backlog health and reapplies
// configuration changes, the way a cluster heartbeat task would. It uses
// robfig/cron/v3 for scheduling since nothing in this codebase's own
// stdlib-only tasks (lxd's own periodic jobs are driven from inside the
// daemon's task package, not a reusable standalone scheduler) offers an
// equivalent off-the-shelf cron parser.
package watchdog

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/canonical/synclimbo/internal/config"
	"github.com/canonical/synclimbo/limbo"
)

// Watchdog periodically logs the limbo's backlog and, when the config
// reloader supplies new values, applies them via OnParametersChange.
type Watchdog struct {
	limbo  *limbo.Limbo
	log    *logrus.Entry
	cron   *cron.Cron
	reload func() (config.Config, error)
}

// New builds a Watchdog that runs on spec (a standard five-field cron
// expression, or an "@every 5s"-style descriptor). reload is called on
// every tick; if it returns a Config whose Quorum/Timeout differ from the
// limbo's current values, they're applied and OnParametersChange runs.
func New(l *limbo.Limbo, spec string, reload func() (config.Config, error), log *logrus.Entry) (*Watchdog, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	w := &Watchdog{
		limbo:  l,
		log:    log.WithField("component", "watchdog"),
		cron:   cron.New(),
		reload: reload,
	}
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, err
	}
	return w, nil
}

// Start runs the scheduler in the background. Stop must be called to shut
// it down cleanly.
func (w *Watchdog) Start() { w.cron.Start() }

// Stop blocks until any in-flight tick finishes, then halts the scheduler.
func (w *Watchdog) Stop() { <-w.cron.Stop().Done() }

func (w *Watchdog) tick() {
	w.log.WithFields(logrus.Fields{
		"len":            w.limbo.Len(),
		"rollback_count": w.limbo.RollbackCount(),
	}).Info("limbo backlog report")

	if w.reload == nil {
		return
	}
	cfg, err := w.reload()
	if err != nil {
		w.log.WithError(err).Warn("failed to reload configuration")
		return
	}

	changed := false
	if cfg.Quorum != w.limbo.Quorum() {
		w.limbo.SetQuorum(cfg.Quorum)
		changed = true
	}
	if cfg.Timeout != w.limbo.Timeout() {
		w.limbo.SetTimeout(cfg.Timeout)
		changed = true
	}
	if changed {
		w.log.Info("applying reloaded synchro parameters")
		w.limbo.OnParametersChange()
	}
}
