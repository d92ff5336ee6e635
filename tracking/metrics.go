package tracking

import "time"

// Metrics receives tracking events. The metrics package provides the
// Prometheus implementation.
type Metrics interface {
	PollCompleted(d time.Duration, vehicles int)
	FetchFailed()
	BlockRebuilt()
	BlockReused()
	StaticRefreshed(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) PollCompleted(time.Duration, int) {}
func (nopMetrics) FetchFailed()                     {}
func (nopMetrics) BlockRebuilt()                    {}
func (nopMetrics) BlockReused()                     {}
func (nopMetrics) StaticRefreshed(bool)             {}
