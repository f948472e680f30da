package openai

import "testing"

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/wav", ".wav"},
		{"audio/x-wav", ".wav"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp3", ".mp3"},
		{"audio/ogg; codecs=opus", ".ogg"},
		{"audio/flac", ".flac"},
		{"audio/m4a", ".m4a"},
		{"audio/webm", ".webm"},
		{"", ".wav"},
		{"application/octet-stream", ".wav"},
	}
	for _, tc := range tests {
		if got := extensionFor(tc.mime); got != tc.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := contentTypeFor("Audio/OGG; codecs=opus"); got != "audio/ogg" {
		t.Errorf("contentTypeFor = %q, want audio/ogg", got)
	}
	if got := contentTypeFor(""); got != "audio/wav" {
		t.Errorf("contentTypeFor(\"\") = %q, want audio/wav", got)
	}
}

func TestNormalizeMIME(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"audio/wav", "audio/wav"},
		{" AUDIO/WAV ", "audio/wav"},
		{"audio/ogg; codecs=opus", "audio/ogg"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := normalizeMIME(tc.in); got != tc.want {
			t.Errorf("normalizeMIME(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
