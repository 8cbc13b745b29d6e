package rpcpool

import "time"

const defaultLatencyWindow = 200

// latencyWindow 固定容量的环形缓冲区，只用于统计滚动平均延迟
type latencyWindow struct {
	samples []time.Duration
	head    int
	count   int
	sum     time.Duration
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultLatencyWindow
	}
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	if w.count == len(w.samples) {
		w.sum -= w.samples[w.head]
	} else {
		w.count++
	}
	w.samples[w.head] = d
	w.sum += d
	w.head = (w.head + 1) % len(w.samples)
}

func (w *latencyWindow) average() time.Duration {
	if w.count == 0 {
		return 0
	}
	return w.sum / time.Duration(w.count)
}

func (w *latencyWindow) len() int {
	return w.count
}
