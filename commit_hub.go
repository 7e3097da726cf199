/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import "sync"

type commitKey struct {
	database string
	table    string
}

// commitHub fans committed writes out to observers of a database table.
// Notifications coalesce: an observer that has not consumed the previous
// signal receives one signal for several commits.
type commitHub struct {
	mu   sync.Mutex
	next int
	subs map[commitKey]map[int]chan struct{}
}

func newCommitHub() *commitHub {
	return &commitHub{subs: make(map[commitKey]map[int]chan struct{})}
}

func (h *commitHub) subscribe(database, table string) (<-chan struct{}, func()) {
	key := commitKey{database: database, table: table}
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]chan struct{})
	}
	h.subs[key][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

func (h *commitHub) publish(database, table string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	signal(h.subs[commitKey{database: database, table: table}])
}

func (h *commitHub) publishDatabase(database string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, subs := range h.subs {
		if key.database == database {
			signal(subs)
		}
	}
}

func (h *commitHub) observers(database, table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[commitKey{database: database, table: table}])
}

func signal(subs map[int]chan struct{}) {
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

var commits = newCommitHub()
