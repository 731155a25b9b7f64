package middleware

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// 模拟一个简单的 handler：直接回显请求体
func echoHandler(ctx context.Context, req *Request) ([]byte, error) {
	return req.Body, nil
}

// 模拟一个慢 handler：睡 200ms 或等到 ctx 结束
func slowHandler(ctx context.Context, req *Request) ([]byte, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return req.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type unavailable struct{}

func (unavailable) Error() string   { return "503 service unavailable" }
func (unavailable) Retryable() bool { return true }

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	handler := Logging(log)(echoHandler)

	reply, err := handler(context.Background(), &Request{Body: []byte("ok")})
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "ok" {
		t.Fatalf("expect reply 'ok', got '%s'", reply)
	}
	if !strings.Contains(buf.String(), `"request_bytes":2`) {
		t.Fatalf("expect exchange to be logged, got %s", buf.String())
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	if _, err := handler(context.Background(), &Request{Body: []byte("ok")}); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), &Request{Body: []byte("ok")})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect the deadline cause to be kept, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个要等约 1s
	handler := RateLimit(1, 2)(echoHandler)
	req := &Request{Body: []byte("ok")}

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), req); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := handler(ctx, req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
}

func TestRetry(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, req *Request) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, unavailable{}
		}
		return []byte("ok"), nil
	}

	handler := Retry(3, time.Millisecond, zerolog.Nop())(flaky)
	reply, err := handler(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("expect success after retries, got %v", err)
	}
	if string(reply) != "ok" || attempts != 3 {
		t.Fatalf("expect 3 attempts ending in ok, got %d attempts, reply %q", attempts, reply)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := errors.New("400 bad request")
	handler := Retry(5, time.Millisecond, zerolog.Nop())(func(ctx context.Context, req *Request) ([]byte, error) {
		attempts++
		return nil, permanent
	})

	if _, err := handler(context.Background(), &Request{}); !errors.Is(err, permanent) {
		t.Fatalf("expect permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(syscall.ECONNREFUSED) {
		t.Error("connection refused should be retryable")
	}
	if !IsRetryable(unavailable{}) {
		t.Error("self-declared retryable error should be retryable")
	}
	if IsRetryable(errors.New("boom")) || IsRetryable(nil) {
		t.Error("plain errors are not retryable")
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) ([]byte, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(mark("a"), Logging(zerolog.Nop()), mark("b"), Timeout(500*time.Millisecond))
	reply, err := chained(echoHandler)(context.Background(), &Request{Body: []byte("ok")})
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if string(reply) != "ok" {
		t.Fatalf("expect reply 'ok', got %q", reply)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expect a before b, got %v", order)
	}
}
