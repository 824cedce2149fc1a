package llm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_ValidatesConfig(t *testing.T) {
	mock := NewMockProvider(nil, nil)

	if _, err := NewRateLimitedProvider(nil, RateLimiterConfig{RequestsPerMinute: 60}); err == nil {
		t.Error("expected error for nil inner provider")
	}
	if _, err := NewRateLimitedProvider(mock, RateLimiterConfig{RequestsPerMinute: 0}); err == nil {
		t.Error("expected error for zero RequestsPerMinute")
	}
}

func TestRateLimiter_Concurrency(t *testing.T) {
	mock := NewMockProvider([]*CompletionResponse{
		{
			Content:      `{"verdicts": {"q_g1_c1": {"verdict": "yes", "justification": "ok"}}}`,
			Model:        "mock-model",
			InputTokens:  10,
			OutputTokens: 10,
			Cost:         0.001,
			DurationMS:   10,
		},
	}, nil)

	cfg := RateLimiterConfig{
		RequestsPerMinute: 1200, // 20/sec
		Burst:             5,
		MaxRetries:        0,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
	}

	rl, err := NewRateLimitedProvider(mock, cfg)
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	const numRequests = 25
	var wg sync.WaitGroup
	errs := make(chan error, numRequests)

	start := time.Now()
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &CompletionRequest{
				Model:    "mock-model",
				Messages: []Message{{Role: "user", Content: "grade this"}},
			}
			_, err := rl.Complete(context.Background(), req)
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	elapsed := time.Since(start)

	var failures []error
	for e := range errs {
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		t.Errorf("expected 0 errors, got %d; first: %v", len(failures), failures[0])
	}

	// 25 requests at 20/sec with burst 5: first 5 instant, remaining 20 at
	// 20/sec = 1s. Use 0.7s as conservative lower bound.
	if elapsed < 700*time.Millisecond {
		t.Errorf("expected wall-clock >= 700ms (proves rate limiting), got %v", elapsed)
	}

	if callCount := mock.GetCallCount(); callCount != numRequests {
		t.Errorf("expected %d calls to mock, got %d", numRequests, callCount)
	}
}

func TestRateLimiter_RetryOnError(t *testing.T) {
	successResp := &CompletionResponse{
		Content:      `{"relevant_criterion_ids": ["c1"]}`,
		Model:        "mock-model",
		InputTokens:  10,
		OutputTokens: 10,
		Cost:         0.001,
		DurationMS:   10,
	}

	// First 2 calls fail, 3rd succeeds
	mock := NewMockProvider(
		[]*CompletionResponse{successResp},
		[]error{
			fmt.Errorf("transient error 1"),
			fmt.Errorf("transient error 2"),
			nil, // 3rd call succeeds — falls through to Responses
		},
	)

	cfg := RateLimiterConfig{
		RequestsPerMinute: 600,
		Burst:             10,
		MaxRetries:        3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
	}

	rl, err := NewRateLimitedProvider(mock, cfg)
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	req := &CompletionRequest{
		Model:    "mock-model",
		Messages: []Message{{Role: "user", Content: "filter"}},
	}

	resp, err := rl.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}

	if resp.Content != successResp.Content {
		t.Errorf("unexpected response content: %s", resp.Content)
	}

	if callCount := mock.GetCallCount(); callCount != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", callCount)
	}
}

func TestRateLimiter_ExhaustsRetries(t *testing.T) {
	mock := NewMockProvider(nil, []error{
		fmt.Errorf("down 1"),
		fmt.Errorf("down 2"),
	})

	cfg := RateLimiterConfig{
		RequestsPerMinute: 600,
		Burst:             10,
		MaxRetries:        1,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
	}

	rl, err := NewRateLimitedProvider(mock, cfg)
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	_, err = rl.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if callCount := mock.GetCallCount(); callCount != 2 {
		t.Errorf("expected 2 calls (initial + 1 retry), got %d", callCount)
	}
}
