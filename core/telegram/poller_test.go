package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPollerWebhook(t *testing.T) {
	p := BuildPoller(PollerOptions{
		RunMode: "Webhook",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook"},
	})
	wh, ok := p.(*tele.Webhook)
	if !ok {
		t.Fatalf("expected webhook poller, got %T", p)
	}
	if wh.Listen != "0.0.0.0:8443" {
		t.Fatalf("listen = %q", wh.Listen)
	}
	if wh.Endpoint == nil || wh.Endpoint.PublicURL != "https://bot.example.com/hook" {
		t.Fatalf("unexpected endpoint %+v", wh.Endpoint)
	}
}

func TestBuildPollerLongpollDefaults(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "longpoll"})
	lp, ok := p.(*tele.LongPoller)
	if !ok {
		t.Fatalf("expected long poller, got %T", p)
	}
	if lp.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v", lp.Timeout)
	}

	p = BuildPoller(PollerOptions{LongPollTimeoutSeconds: 25})
	if got := p.(*tele.LongPoller).Timeout; got != 25*time.Second {
		t.Fatalf("timeout = %v", got)
	}
}
