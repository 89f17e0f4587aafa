package httpapi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPLimiter_PruneIdleDropsRefilledBuckets(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(rate.Every(time.Minute), 2)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"))
	require.True(t, l.Allow("10.0.0.2"))
	require.False(t, l.Allow("10.0.0.2"))

	// One minute later 10.0.0.1 is full again; 10.0.0.2 still owes a token.
	n, err := l.PruneIdle(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, l.Len())

	n, err = l.PruneIdle(context.Background(), now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, l.Len())
}

func TestIPLimiter_SweepsWhenTableIsLarge(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(rate.Every(time.Second), 1)
	l.now = func() time.Time { return now }

	for i := 0; i < limiterSweepAt; i++ {
		l.Allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256))
	}
	require.Equal(t, limiterSweepAt, l.Len())

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("192.0.2.1"))
	assert.Equal(t, 1, l.Len(), "refilled buckets are dropped before the table grows")
}

func TestParseTrustedProxies(t *testing.T) {
	p, err := parseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", ""})
	require.NoError(t, err)
	require.Len(t, p, 2)

	_, err = parseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := parseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"no proxy configured hop", "192.0.2.7:5000", "1.2.3.4", "192.0.2.7"},
		{"trusted peer", "10.0.0.5:5000", "198.51.100.4", "198.51.100.4"},
		{"spoofed leftmost hop", "10.0.0.5:5000", "1.2.3.4, 198.51.100.4, 10.0.0.9", "198.51.100.4"},
		{"trusted peer without header", "10.0.0.5:5000", "", "10.0.0.5"},
		{"garbage hop", "10.0.0.5:5000", "nonsense", "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/admin/login", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, proxies.clientIP(r))
		})
	}

	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "10.0.0.5:5000"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "10.0.0.5", trustedProxies(nil).clientIP(r), "no trusted proxies means XFF is ignored")
}
