package mqtt

import (
	log "github.com/sirupsen/logrus"
)

// pending is a serialized message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox queues messages while the broker is unreachable. Power events are
// kept in order up to limit, dropping the oldest. A retained message
// replaces any earlier retained message on its topic, since the broker would
// only keep the last one anyway.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs    []pending
	limit   int
	dropped int
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{limit: limit}
}

func (o *outbox) push(m pending) {
	if m.retained {
		for i, old := range o.msgs {
			if old.retained && old.topic == m.topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	if len(o.msgs) == o.limit {
		if o.dropped == 0 {
			log.WithField("limit", o.limit).Warn("mqtt: outbox full, dropping oldest")
		}
		o.dropped++
		o.msgs = o.msgs[1:]
	}
	o.msgs = append(o.msgs, m)
}

// drain empties the outbox, oldest first, and reports how many messages
// were lost since the previous drain.
func (o *outbox) drain() (msgs []pending, dropped int) {
	msgs, dropped = o.msgs, o.dropped
	o.msgs = nil
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int { return len(o.msgs) }
