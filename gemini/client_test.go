package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateContentSendsRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("api key header missing")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	resp, err := c.GenerateContent(context.Background(), "test-model", &Request{
		Contents: []Content{{Role: "user", Parts: []Part{TextPart("hi"), BlobPart("image/jpeg", []byte{0xff, 0xd8})}}},
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if resp.Text() != `{"a":1}` {
		t.Fatalf("text = %q", resp.Text())
	}
	if got.Contents[0].Parts[1].InlineData.Data != base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8}) {
		t.Fatalf("inline data not encoded: %+v", got.Contents[0].Parts[1])
	}
	if got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generation config lost")
	}
}

func TestGenerateContentStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.GenerateContent(context.Background(), "m", &Request{}); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestResponseHelpers(t *testing.T) {
	var empty *Response
	if empty.Text() != "" || empty.FunctionCalls() != nil {
		t.Fatal("nil response should be empty")
	}
	if _, _, err := (&Response{}).InlineData(); err != ErrNoCandidate {
		t.Fatalf("err = %v", err)
	}

	resp := &Response{Candidates: []Candidate{{Content: Content{Parts: []Part{
		{FunctionCall: &FunctionCall{Name: "getCameras", Args: map[string]interface{}{"eventId": "ev1"}}},
		BlobPart("audio/L16;codec=pcm;rate=24000", []byte{1, 2, 3}),
	}}}}}
	calls := resp.FunctionCalls()
	if len(calls) != 1 || calls[0].Name != "getCameras" {
		t.Fatalf("calls = %+v", calls)
	}
	mime, data, err := resp.InlineData()
	if err != nil || mime != "audio/L16;codec=pcm;rate=24000" || len(data) != 3 {
		t.Fatalf("inline = %q %v %v", mime, data, err)
	}
}

func TestDataURIPart(t *testing.T) {
	p, err := DataURIPart("data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("DataURIPart: %v", err)
	}
	if p.InlineData.MimeType != "image/png" || p.InlineData.Data != "AAAA" {
		t.Fatalf("part = %+v", p.InlineData)
	}
	for _, bad := range []string{"http://x", "data:image/png,AAAA", "data:;base64,AAAA"} {
		if _, err := DataURIPart(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
