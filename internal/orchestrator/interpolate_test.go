package orchestrator

import "testing"

func TestInterpolateReplacesStringLeavesOnly(t *testing.T) {
	input := map[string]any{
		"metadata": map[string]any{
			"name": "cfg-$SHA",
		},
		"data": map[string]any{
			"v":     "$SHA",
			"count": 3,
			"empty": "",
		},
		"list": []any{"$SHA-a", "$SHA-b"},
	}

	got := Interpolate(input, "abc123").(map[string]any)

	metadata := got["metadata"].(map[string]any)
	if metadata["name"] != "cfg-abc123" {
		t.Errorf("metadata.name = %v", metadata["name"])
	}
	data := got["data"].(map[string]any)
	if data["v"] != "abc123" {
		t.Errorf("data.v = %v", data["v"])
	}
	if data["count"] != 3 {
		t.Errorf("data.count should be unchanged, got %v", data["count"])
	}
	if data["empty"] != "" {
		t.Errorf("data.empty should stay empty, got %v", data["empty"])
	}
	list := got["list"].([]any)
	if list[0] != "abc123-a" || list[1] != "abc123-b" {
		t.Errorf("list = %v", list)
	}
}

func TestInterpolateIsIdempotent(t *testing.T) {
	input := map[string]any{"name": "cfg-$SHA"}
	once := Interpolate(input, "abc123")
	twice := Interpolate(once, "abc123")

	onceName := once.(map[string]any)["name"]
	twiceName := twice.(map[string]any)["name"]
	if onceName != twiceName {
		t.Errorf("interpolate not idempotent: %v != %v", onceName, twiceName)
	}
}
