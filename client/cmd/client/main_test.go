package main

import (
	"reflect"
	"testing"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/pkg/channelmux"
)

type recordingSubscriber struct {
	subscribed   []string
	unsubscribed []string
}

func (r *recordingSubscriber) Subscribe(ch channelmux.Channel) {
	r.subscribed = append(r.subscribed, ch.Name())
}

func (r *recordingSubscriber) Unsubscribe(name string) {
	r.unsubscribed = append(r.unsubscribed, name)
}

func TestApplyChannels(t *testing.T) {
	rec := &recordingSubscriber{}
	applyChannels(rec, config.ChannelChange{
		Added:   []string{"private-room1"},
		Removed: []string{"news"},
	})

	if !reflect.DeepEqual(rec.subscribed, []string{"private-room1"}) {
		t.Errorf("subscribed: got %v", rec.subscribed)
	}
	if !reflect.DeepEqual(rec.unsubscribed, []string{"news"}) {
		t.Errorf("unsubscribed: got %v", rec.unsubscribed)
	}
}

func TestBuildEnvelope(t *testing.T) {
	env, err := buildEnvelope("client-typing", "presence-lobby", `{"user":"a"}`)
	if err != nil {
		t.Fatalf("buildEnvelope: %v", err)
	}
	if env.Event != "client-typing" || env.Channel != "presence-lobby" || string(env.Data) != `{"user":"a"}` {
		t.Errorf("got %+v", env)
	}

	if _, err := buildEnvelope("x", "", "{not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}

	env, err = buildEnvelope("ping", "", "")
	if err != nil || env.Data != nil {
		t.Errorf("empty data: got %+v, %v", env, err)
	}
}

func TestMetricsURL(t *testing.T) {
	if got := metricsURL(":9102"); got != "http://localhost:9102/metrics" {
		t.Errorf("got %q", got)
	}
	if got := metricsURL("10.0.0.1:9102"); got != "http://10.0.0.1:9102/metrics" {
		t.Errorf("got %q", got)
	}
}

func TestSetupLogger(t *testing.T) {
	if err := setupLogger("debug"); err != nil {
		t.Errorf("debug: %v", err)
	}
	if err := setupLogger("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
