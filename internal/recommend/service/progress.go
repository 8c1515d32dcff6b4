package service

import (
	"sync"

	"marketlink-service/internal/catalog/model"
)

// ProgressReporter receives running statistics after every product; one
// instance per run. stats is a copy the reporter may keep.
type ProgressReporter interface {
	Report(stats model.RunStats)
}

// Progress: рассылка прогресса одного прогона подписчикам.
// Каждый подписчик получает канал ёмкостью 1: медленный читатель видит только
// последнее событие, промежуточные схлопываются. Терминальное событие закрывает
// все каналы; после него новые подписчики получают снимок и сразу закрытие.
type Progress struct {
	mu     sync.Mutex
	last   model.ProgressEvent
	done   bool
	nextID int
	subs   map[int]chan model.ProgressEvent
}

func NewProgress() *Progress {
	return &Progress{
		last: model.ProgressEvent{Status: model.ProgressRunning},
		subs: make(map[int]chan model.ProgressEvent),
	}
}

func (p *Progress) Report(stats model.RunStats) {
	p.Publish(stats.Percent(), stats.Message())
}

// Publish emits a running event. Percent never goes backwards.
func (p *Progress) Publish(percent int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.last = model.ProgressEvent{
		Percent: max(p.last.Percent, min(percent, 100)),
		Message: message,
		Status:  model.ProgressRunning,
	}
	for _, ch := range p.subs {
		offer(ch, p.last)
	}
}

// Finish emits the terminal event and closes every subscriber channel.
// Repeated calls are ignored.
func (p *Progress) Finish(status model.ProgressStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	pct := p.last.Percent
	if status == model.ProgressCompleted {
		pct = 100
	}
	p.last = model.ProgressEvent{Percent: pct, Message: message, Status: status}
	p.done = true
	for id, ch := range p.subs {
		offer(ch, p.last)
		close(ch)
		delete(p.subs, id)
	}
}

// Subscribe returns a channel primed with the latest snapshot and an
// idempotent unsubscribe func.
func (p *Progress) Subscribe() (<-chan model.ProgressEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan model.ProgressEvent, 1)
	ch <- p.last
	if p.done {
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

func (p *Progress) Snapshot() model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// offer replaces a pending undelivered event with ev. Callers hold p.mu, so
// no other sender races on ch.
func offer(ch chan model.ProgressEvent, ev model.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- ev
}
