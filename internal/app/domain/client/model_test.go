package client

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCloneHistory(t *testing.T) {
	if got := CloneHistory(nil); got != nil {
		t.Fatalf("nil history must stay nil, got %#v", got)
	}

	empty := CloneHistory([]PurchaseRecord{})
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty history must stay empty, got %#v", empty)
	}

	original := []PurchaseRecord{{ID: "r1", Product: "Espresso"}}
	cloned := CloneHistory(original)
	cloned[0].Product = "tampered"
	if original[0].Product != "Espresso" {
		t.Fatal("mutating the clone must not affect the original")
	}
}

func TestCloneKeepsEmptyHistoryEmpty(t *testing.T) {
	c := Client{Code: "alice01", Name: "alice", History: []PurchaseRecord{}}
	cloned := c.Clone()
	if cloned.History == nil {
		t.Fatal("clone of an empty history must not become nil")
	}

	data, err := json.Marshal(cloned)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"history":[]`) {
		t.Fatalf("empty history must serialize as [], got %s", data)
	}
}
