package authhttp

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultClientIP(t *testing.T) {
	fn := DefaultClientIP()
	for _, tc := range []struct {
		remote string
		want   string
	}{
		{"203.0.113.9:4000", "203.0.113.9"},
		{"203.0.113.9", "203.0.113.9"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"[::ffff:203.0.113.9]:80", "203.0.113.9"},
		{"10.0.0.4:9000", ""},
		{"127.0.0.1:9000", ""},
		{"garbage", ""},
		{"", ""},
	} {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = tc.remote
		require.Equal(t, tc.want, fn(r), tc.remote)
	}
}

func TestClientIPFromForwardedHeaders(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.7", " "})
	require.NoError(t, err)
	require.Len(t, trusted, 2)
	fn := ClientIPFromForwardedHeaders(trusted)

	req := func(remote, xff, cf string) string {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = remote
		if xff != "" {
			r.Header.Set("X-Forwarded-For", xff)
		}
		if cf != "" {
			r.Header.Set("CF-Connecting-IP", cf)
		}
		return fn(r)
	}

	require.Equal(t, "198.51.100.4", req("10.1.2.3:80", "198.51.100.4", ""))
	require.Equal(t, "198.51.100.4", req("10.1.2.3:80", "203.0.113.66, 198.51.100.4, 10.9.9.9", ""))
	require.Equal(t, "198.51.100.5", req("192.168.1.7:80", "198.51.100.4", "198.51.100.5"))
	// Untrusted peers cannot pick their own address.
	require.Equal(t, "203.0.113.2", req("203.0.113.2:80", "198.51.100.4", "198.51.100.5"))
	require.Equal(t, "", req("172.16.0.1:80", "198.51.100.4", ""))
	require.Equal(t, "", req("10.1.2.3:80", "not-an-ip", ""))
	require.Equal(t, "", req("10.1.2.3:80", "", ""))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)
}
