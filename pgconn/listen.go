package pgconn

import (
	"context"
	"strings"
	"sync"
	"time"
)

const notificationBufferSize = 32

// NotificationStream delivers NOTIFY payloads for one LISTEN subscription.
type NotificationStream struct {
	conn    *PgConn
	channel string

	mu     sync.Mutex
	ch     chan *Notification
	err    error
	closed bool
}

// Listen subscribes to a notification channel. Multiple streams may listen
// on the same channel; each receives every notification. Closing the last
// stream for a channel issues UNLISTEN.
func (c *PgConn) Listen(ctx context.Context, channel string) (*NotificationStream, error) {
	ns := &NotificationStream{
		conn:    c,
		channel: channel,
		ch:      make(chan *Notification, notificationBufferSize),
	}

	c.notifMu.Lock()
	first := len(c.subscribers[channel]) == 0
	c.subscribers[channel] = append(c.subscribers[channel], ns)
	c.notifMu.Unlock()

	if first {
		if _, err := c.Exec(ctx, "LISTEN "+quoteIdentifier(channel)); err != nil {
			c.removeSubscriber(ns)
			return nil, newError(ErrCodeListenFailed, err)
		}
	}

	return ns, nil
}

// Next blocks until a notification arrives, the subscription is closed, the
// connection dies, or ctx is done.
func (ns *NotificationStream) Next(ctx context.Context) (*Notification, error) {
	select {
	case n, ok := <-ns.ch:
		if !ok {
			ns.mu.Lock()
			err := ns.err
			ns.mu.Unlock()
			if err == nil {
				err = newError(ErrCodeClientClosedConnection, nil)
			}
			return nil, err
		}
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close deregisters the subscription. If it was the channel's last
// subscriber, UNLISTEN is sent; a failure there surfaces as an unlisten
// error but the subscription is gone either way.
func (ns *NotificationStream) Close() error {
	ns.mu.Lock()
	if ns.closed {
		ns.mu.Unlock()
		return nil
	}
	ns.closed = true
	close(ns.ch)
	ns.mu.Unlock()

	last := ns.conn.removeSubscriber(ns)
	if last && !ns.conn.IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := ns.conn.Exec(ctx, "UNLISTEN "+quoteIdentifier(ns.channel)); err != nil {
			return newError(ErrCodeUnlistenFailed, err)
		}
	}
	return nil
}

func (ns *NotificationStream) deliver(n *Notification) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return
	}
	select {
	case ns.ch <- n:
	default:
		// Subscriber is not keeping up; drop rather than stall the reader.
	}
}

func (ns *NotificationStream) fail(err error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return
	}
	ns.closed = true
	ns.err = err
	close(ns.ch)
}

// removeSubscriber detaches ns and reports whether it was the channel's last
// subscriber.
func (c *PgConn) removeSubscriber(ns *NotificationStream) bool {
	c.notifMu.Lock()
	defer c.notifMu.Unlock()

	subs := c.subscribers[ns.channel]
	for i, s := range subs {
		if s == ns {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(c.subscribers, ns.channel)
		return true
	}
	c.subscribers[ns.channel] = subs
	return false
}

func (c *PgConn) forwardNotification(n *Notification) {
	c.notifMu.Lock()
	subs := append([]*NotificationStream(nil), c.subscribers[n.Channel]...)
	c.notifMu.Unlock()

	for _, ns := range subs {
		ns.deliver(n)
	}
}

func (c *PgConn) failSubscribers() {
	err := c.takeCloseErr()

	c.notifMu.Lock()
	var all []*NotificationStream
	for _, subs := range c.subscribers {
		all = append(all, subs...)
	}
	c.subscribers = make(map[string][]*NotificationStream)
	c.notifMu.Unlock()

	for _, ns := range all {
		ns.fail(err)
	}
}

// quoteIdentifier double-quotes a channel name for LISTEN/UNLISTEN.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
