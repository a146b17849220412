package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublisherWritesStreamEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewPublisher(client, 0)
	ctx := context.Background()
	err := pub.Publish(ctx, TransferEventsStream, TransferSettled, TransferSettledEvent{
		TransactionID: "tx-1",
		From:          "0xaaaa",
		To:            "0xbbbb",
		AmountMinor:   "2000",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	entries, err := client.XRange(ctx, TransferEventsStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Values["type"] != TransferSettled {
		t.Fatalf("unexpected type field %v", entries[0].Values["type"])
	}

	raw, _ := entries[0].Values["event"].(string)
	var decoded struct {
		Type string               `json:"type"`
		Data TransferSettledEvent `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.Type != TransferSettled || decoded.Data.TransactionID != "tx-1" || decoded.Data.AmountMinor != "2000" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestPublisherFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	if err := NewPublisher(client, 10).Publish(context.Background(), AccountEventsStream, AccountCreated, AccountCreatedEvent{Address: "0xaaaa"}); err == nil {
		t.Fatal("expected publish to fail with redis down")
	}
}
