package dispatch

import (
	"reflect"
	"testing"
)

func TestMergeSpecExample(t *testing.T) {
	responses := []map[string]any{
		{"totalItems": float64(3), "items": []any{float64(1), float64(2), float64(3)}},
		{"totalItems": float64(2), "items": []any{float64(3), float64(4)}},
	}
	got := Merge(responses, 1, 2)
	want := map[string]any{
		"totalItems": float64(5),
		"items":      []any{float64(2), float64(3)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge() = %#v, want %#v", got, want)
	}
}

func TestMergePriorityPair(t *testing.T) {
	responses := []map[string]any{
		{"msg": "All selected agents were restarted"},
		{"msg": "Some agents were not restarted"},
	}
	got := Merge(responses, 0, 0)
	if got["msg"] != "Some agents were not restarted" {
		t.Fatalf("msg = %v, want the higher-priority message", got["msg"])
	}

	// order reversed: priority still wins, not last-wins.
	responses = []map[string]any{
		{"msg": "Some agents were not restarted"},
		{"msg": "All selected agents were restarted"},
	}
	got = Merge(responses, 0, 0)
	if got["msg"] != "Some agents were not restarted" {
		t.Fatalf("msg = %v, want the higher-priority message regardless of order", got["msg"])
	}
}

func TestMergeErrorFieldTakesMax(t *testing.T) {
	responses := []map[string]any{
		{"error": float64(0)},
		{"error": float64(2)},
		{"error": float64(1)},
	}
	got := Merge(responses, 0, 0)
	if got["error"] != float64(2) {
		t.Fatalf("error = %v, want 2", got["error"])
	}
}
