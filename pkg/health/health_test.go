package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type probeBody struct {
	Status string
	Checks map[string]string
}

func get(t *testing.T, endpoint http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	d := jx.DecodeBytes(w.Body.Bytes())
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			body.Status = s
			return err
		case "checks":
			body.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				msg, err := d.Str()
				body.Checks[name] = msg
				return err
			})
		}
		return d.Skip()
	}))
	return w.Code, body
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.Register(Check{Name: "ok", Func: passing})
	h.Register(Check{Name: "db", Probe: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.checks[1].run(context.Background())

	code, body := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestCheck_FailureThreshold(t *testing.T) {
	h := New()
	h.Register(Check{Name: "db", Func: failing("connection refused")})
	c := h.checks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	code, _ := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below threshold")

	c.run(ctx)
	code, body := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])

	c.Func = passing
	c.run(ctx)
	code, _ = get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "one success recovers")
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Register(Check{Name: "postgres", Probe: Readiness, Func: passing})

	code, body := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	h.checks[0].Func = failing("timeout")
	h.checks[0].FailureThreshold = 1
	h.checks[0].run(context.Background())
	code, body = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "timeout", body.Checks["postgres"])
	assert.False(t, h.IsReady())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Register(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.checks[0].run(context.Background())

	code, body := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks["slow"], "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.Register(Check{Name: "counter", Func: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	h.Start(context.Background(), time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()

	after := runs.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, PingCheck(pinger{})(ctx))
	require.Error(t, PingCheck(pinger{err: errors.New("refused")})(ctx))

	require.NoError(t, GoroutineCountCheck(100_000)(ctx))
	require.Error(t, GoroutineCountCheck(0)(ctx))
}
