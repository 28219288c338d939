package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/applytrail/internal/model"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    []CompletionRequest
	text     string
	err      error
	delay    time.Duration
	deadline bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Ping(ctx context.Context) error { return f.err }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	if _, ok := ctx.Deadline(); ok {
		f.deadline = true
	}
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, transportError("fake", ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Text: f.text, Model: "fake-1"}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestClient_Classify_TieBreakRejectionWins(t *testing.T) {
	fake := &fakeProvider{text: "YES"}
	client := NewClient(fake, ClientConfig{Logger: zaptest.NewLogger(t)})

	item := model.Item{
		ID:      "m1",
		Subject: "Your application to Acme",
		Body:    "Thank you for applying to Acme. After careful review we are not moving forward with your candidacy.",
	}

	ok, err := client.Classify(context.Background(), item)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if ok {
		t.Error("Expected rejection to win over confirmation")
	}
	if fake.callCount() != 0 {
		t.Errorf("Expected no backend call, got %d", fake.callCount())
	}
}

func TestClient_Classify_HedgedConfirmationReachesBackend(t *testing.T) {
	bodies := []string{
		"Thank you for applying to Acme. Unfortunately, due to the high volume of applications we cannot respond individually.",
		"Your application has been received. If you are not selected for an interview, we will keep your resume on file.",
	}

	for _, body := range bodies {
		fake := &fakeProvider{text: "YES"}
		client := NewClient(fake, ClientConfig{Logger: zaptest.NewLogger(t)})

		ok, err := client.Classify(context.Background(), model.Item{ID: "m3", Subject: "Acme careers", Body: body})
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if fake.callCount() != 1 {
			t.Errorf("Expected the backend to decide %q, got %d calls", body, fake.callCount())
		}
		if !ok {
			t.Errorf("Expected backend answer to be used for %q", body)
		}
	}
}

func TestClient_Classify_UsesBackend(t *testing.T) {
	fake := &fakeProvider{text: "YES"}
	client := NewClient(fake, ClientConfig{Logger: zaptest.NewLogger(t)})

	item := model.Item{
		ID:      "m2",
		Sender:  "no-reply@greenhouse.io",
		Subject: "Thank you for applying to Acme",
		Body:    "We have received your application for Backend Engineer.",
	}

	ok, err := client.Classify(context.Background(), item)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !ok {
		t.Error("Expected positive classification")
	}

	if fake.callCount() != 1 {
		t.Fatalf("Expected one backend call, got %d", fake.callCount())
	}
	prompt := fake.calls[0].Prompt
	for _, want := range []string{"Rejection wins", "greenhouse.io", "not moving forward", item.Subject} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
	if !fake.deadline {
		t.Error("Expected the backend call to carry a deadline")
	}
}

func TestClient_Extract_NullNormalized(t *testing.T) {
	fake := &fakeProvider{text: `Here you go: {"company": "Acme", "position": "null", "date": "2020-01-01"}`}
	client := NewClient(fake, ClientConfig{})

	ext, err := client.Extract(context.Background(), model.Item{ID: "m3"})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if ext.Company != "Acme" || ext.Position != "" {
		t.Errorf("Unexpected extraction %+v", ext)
	}
	if !fake.calls[0].JSON {
		t.Error("Expected JSON output to be requested")
	}
}

func TestClient_Extract_Incomplete(t *testing.T) {
	fake := &fakeProvider{text: `{"company": "NULL", "position": "none"}`}
	client := NewClient(fake, ClientConfig{})

	_, err := client.Extract(context.Background(), model.Item{ID: "m4"})
	if !errors.Is(err, model.ErrExtractionIncomplete) {
		t.Fatalf("Expected ErrExtractionIncomplete, got %v", err)
	}
}

func TestClient_TypedFailures(t *testing.T) {
	fake := &fakeProvider{err: &APIError{Provider: "fake", StatusCode: 429}}
	client := NewClient(fake, ClientConfig{})

	_, err := client.Classify(context.Background(), model.Item{ID: "m5", Subject: "hello"})
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if fake.callCount() != 1 {
		t.Errorf("Client must not retry, got %d calls", fake.callCount())
	}

	fake.err = errors.New("boom")
	_, err = client.Extract(context.Background(), model.Item{ID: "m6"})
	if !errors.Is(err, model.ErrInference) {
		t.Fatalf("Expected plain errors to be wrapped as ErrInference, got %v", err)
	}
	if errors.Is(err, model.ErrRateLimited) {
		t.Error("Plain errors are not rate limited")
	}
}

func TestClient_Timeout(t *testing.T) {
	fake := &fakeProvider{text: "YES", delay: time.Second}
	client := NewClient(fake, ClientConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := client.Classify(context.Background(), model.Item{ID: "m7", Subject: "hi"})
	if !errors.Is(err, model.ErrInference) {
		t.Fatalf("Expected ErrInference on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Timeout was not enforced")
	}
}
