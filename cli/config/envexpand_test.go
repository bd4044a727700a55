package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("IS_REDIS_HOST", "redis.summit")
	t.Setenv("IS_BUCKET", "frames-2026")
	t.Setenv("IS_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "url: redis://${IS_REDIS_HOST}:6379", "url: redis://redis.summit:6379"},
		{"unset expands to empty", "path: ${IS_UNSET_12345}", "path: "},
		{"default when unset", "codec: ${IS_UNSET_12345:-msgpack}", "codec: msgpack"},
		{"default ignored when set", "path: ${IS_BUCKET:-scratch}/gpi", "path: frames-2026/gpi"},
		{"default when empty", "type: ${IS_EMPTY:-memory}", "type: memory"},
		{"several on one line", "${IS_REDIS_HOST}/${IS_BUCKET}", "redis.summit/frames-2026"},
		{"default with url", "${IS_UNSET_12345:-http://localhost:8080/hook}", "http://localhost:8080/hook"},
		{"bare dollar untouched", "price: $5 and $IS_BUCKET", "price: $5 and $IS_BUCKET"},
		{"no vars", "name: gpi", "name: gpi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_ConfigDocument(t *testing.T) {
	t.Setenv("IS_WEBHOOK_TOKEN", "secret")

	input := `name: gpi
stream:
  url: ${IS_STREAM_URL_UNSET:-redis://localhost:6379}
adapter:
  type: webhook
  headers:
    Authorization: Bearer ${IS_WEBHOOK_TOKEN}`

	want := `name: gpi
stream:
  url: redis://localhost:6379
adapter:
  type: webhook
  headers:
    Authorization: Bearer secret`

	if got := ExpandEnv(input); got != want {
		t.Errorf("ExpandEnv() =\n%s\nwant\n%s", got, want)
	}
}
