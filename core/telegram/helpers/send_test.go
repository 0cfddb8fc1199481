package helpers

import (
	"context"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/learnstations/stationbot/core/logger"
)

func TestBuildContextCachesAndCarriesMeta(t *testing.T) {
	c := tele.NewContext(nil, tele.Update{
		ID: 5,
		Message: &tele.Message{
			Sender: &tele.User{ID: 11},
			Chat:   &tele.Chat{ID: 22},
		},
	})
	ctx := BuildContext(c)
	if logger.UserIDFrom(ctx) != 11 || logger.ChatIDFrom(ctx) != 22 || logger.UpdateIDFrom(ctx) != 5 {
		t.Fatalf("update meta missing from context")
	}
	if logger.RIDFrom(ctx) != logger.BuildRID(5, 22, 11) {
		t.Fatalf("rid = %q", logger.RIDFrom(ctx))
	}
	if again := BuildContext(c); again != ctx {
		t.Fatalf("context should be cached on tele.Context")
	}

	hctx := WithHandler(c, "start")
	if logger.HandlerFrom(hctx) != "start" {
		t.Fatalf("handler missing")
	}
	if stored, _ := ContextFrom(c); stored != hctx {
		t.Fatalf("handler context not stored")
	}
}

func TestContextFromMissing(t *testing.T) {
	c := tele.NewContext(nil, tele.Update{})
	if _, ok := ContextFrom(c); ok {
		t.Fatalf("expected no stored context")
	}
	StoreContext(c, context.Background())
	if _, ok := ContextFrom(c); !ok {
		t.Fatalf("expected stored context")
	}
}

func TestAnswerIgnoresNonCallbacks(t *testing.T) {
	c := tele.NewContext(nil, tele.Update{Message: &tele.Message{}})
	if err := Answer(c, "hi"); err != nil {
		t.Fatalf("Answer on message: %v", err)
	}
}
