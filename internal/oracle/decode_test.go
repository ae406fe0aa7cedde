package oracle

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, got map[string]any)
	}{
		{
			name: "bare object",
			raw:  `{"intent": "registration", "amount": 50}`,
			check: func(t *testing.T, got map[string]any) {
				if got["intent"] != "registration" {
					t.Errorf("intent = %v", got["intent"])
				}
			},
		},
		{
			name: "fenced json block",
			raw:  "```json\n{\"intent\": \"help\"}\n```",
			check: func(t *testing.T, got map[string]any) {
				if got["intent"] != "help" {
					t.Errorf("intent = %v", got["intent"])
				}
			},
		},
		{
			name: "fenced without language tag",
			raw:  "```\n{\"ok\": true}\n```",
			check: func(t *testing.T, got map[string]any) {
				if got["ok"] != true {
					t.Errorf("ok = %v", got["ok"])
				}
			},
		},
		{
			name: "prose around the object",
			raw:  "Claro! Aqui está o resultado:\n{\"intent\": \"query_total\"}\nEspero ter ajudado.",
			check: func(t *testing.T, got map[string]any) {
				if got["intent"] != "query_total" {
					t.Errorf("intent = %v", got["intent"])
				}
			},
		},
		{
			name: "nested braces survive trimming",
			raw:  `resultado: {"a": {"b": 1}, "c": 2} fim`,
			check: func(t *testing.T, got map[string]any) {
				if got["c"] != float64(2) {
					t.Errorf("c = %v", got["c"])
				}
			},
		},
		{
			name:    "no json at all",
			raw:     "desculpe, não entendi",
			wantErr: true,
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"intent": }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			err := ExtractJSON(tt.raw, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	raw := "```json\n[{\"name\": \"Mercado\"}, {\"name\": \"Lazer\"}]\n```"
	var got []map[string]any
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if len(got) != 2 || got[1]["name"] != "Lazer" {
		t.Errorf("got %v", got)
	}
}
