package natsserver

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestEmbeddedPublishSubscribe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = -1
	ns, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ns.Shutdown()

	got := make(chan []byte, 1)
	sub, err := ns.Conn().Subscribe("drishti.ev.analysis", func(m *nats.Msg) {
		got <- m.Data
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	ns.Conn().Flush()

	if err := ns.Publish("drishti.ev.analysis", []byte(`{"cam-webcam":{}}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != `{"cam-webcam":{}}` {
			t.Fatalf("payload = %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	if stats := ns.GetStats(); stats.Published != 1 {
		t.Fatalf("published = %d", stats.Published)
	}
}
