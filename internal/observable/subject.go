// Package observable は最新値を保持し購読者に配信するストリームを提供する。
package observable

import "sync"

// Subject は最新値を1つ保持し、購読者へ配信する。
// 購読開始時には現在値が即座に届く。購読者の受信が遅れた場合は
// 古い値を捨てて最新値だけを残す（途中の値は欠落し得る）。
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewSubject は初期値を持つSubjectを生成する。
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Value は現在値を返す。
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish は値を現在値として保持し、全購読者に配信する。
// 購読者の受信を待たずに返る。
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.value = v
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Subscribe は値を受信するチャネルと購読解除関数を返す。
// 購読解除するとチャネルはクローズされる。解除関数は複数回呼んでもよい。
func (s *Subject[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.value

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Close は全購読者のチャネルをクローズし、以降のPublishを無視する。
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// offer はバッファ1のチャネルに最新値を書き込む。
// 送信はロック下でのみ行われるため、空にした後の送信はブロックしない。
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
