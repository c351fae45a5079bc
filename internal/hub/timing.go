package hub

import (
	"time"

	"github.com/sirupsen/logrus"
)

// turnMeter tracks how fast turns are being played, logged every interval
// turns. Useful to spot stalls when bots drive the server at full speed.
type turnMeter struct {
	interval int
	last     time.Time
	rate     float64
}

func newTurnMeter(interval int) turnMeter {
	return turnMeter{interval: interval, last: time.Now()}
}

func (m *turnMeter) update(turns int, log *logrus.Logger) {
	if m.interval <= 0 || turns == 0 || turns%m.interval != 0 {
		return
	}
	elapsed := time.Since(m.last)
	if elapsed > 0 {
		m.rate = float64(m.interval) / elapsed.Seconds()
	}
	m.last = time.Now()
	log.WithFields(logrus.Fields{
		"turns":       turns,
		"turns_per_s": m.rate,
	}).Debug("turn rate")
}
