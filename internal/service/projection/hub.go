package projection

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultRefreshInterval = 5 * time.Second

// ErrHubStarted — повторный Start без Stop.
var ErrHubStarted = errors.New("projection hub already started")

// Hub пересчитывает Snapshot по сигналу Invalidate или по таймеру
// и раздаёт его подписчикам. Медленный подписчик получает только последний срез.
type Hub struct {
	views    *Views
	logger   *log.Entry
	interval time.Duration

	dirty chan struct{}

	mu      sync.Mutex
	subs    map[chan Snapshot]struct{}
	latest  Snapshot
	hasLast bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// HubOption настраивает Hub.
type HubOption func(*Hub)

// WithRefreshInterval задаёт период принудительного пересчёта.
func WithRefreshInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.interval = interval
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub создаёт остановленный Hub.
func NewHub(views *Views, opts ...HubOption) *Hub {
	h := &Hub{
		views:    views,
		logger:   log.New().WithField("component", "projection-hub"),
		interval: defaultRefreshInterval,
		dirty:    make(chan struct{}, 1),
		subs:     make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start запускает цикл пересчёта. Цикл живёт до Stop или отмены ctx.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return ErrHubStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(loopCtx, h.done)
	return nil
}

// Stop останавливает цикл, дожидается его выхода и закрывает каналы подписчиков.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	h.mu.Lock()
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
	h.mu.Unlock()
}

// Subscribe возвращает канал срезов и функцию отписки. Если срез уже есть,
// он сразу лежит в канале.
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.hasLast {
		ch <- h.latest
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Invalidate просит пересчитать срез. Не блокирует; сигналы схлопываются.
func (h *Hub) Invalidate() {
	select {
	case h.dirty <- struct{}{}:
	default:
	}
}

// Latest возвращает последний вычисленный срез.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLast
}

// Subscribers возвращает число активных подписчиков.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.dirty:
			h.refresh(ctx)
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *Hub) refresh(ctx context.Context) {
	snap, err := h.views.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.WithError(err).Warn("failed to refresh projections")
		}
		return
	}
	h.publish(snap)
}

func (h *Hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = snap
	h.hasLast = true
	for ch := range h.subs {
		// Вытесняем непрочитанный срез: подписчику нужен только последний.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
