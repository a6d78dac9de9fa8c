package gmail

import (
	"encoding/base64"
	"testing"
)

func TestReceivedAt(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		internal int64
		want     string
	}{
		{"rfc1123z", "Tue, 03 Mar 2026 10:15:00 +0100", 0, "2026-03-03T09:15:00Z"},
		{"single digit day", "Tue, 3 Mar 2026 10:15:00 +0000", 0, "2026-03-03T10:15:00Z"},
		{"zone comment", "Tue, 03 Mar 2026 10:15:00 +0000 (UTC)", 0, "2026-03-03T10:15:00Z"},
		{"internal date fallback", "garbage", 1772532900000, "2026-03-03T10:15:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := receivedAt(tc.header, tc.internal); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte("Subject: hi\r\n\r\nbody??>>")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString(raw))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(raw) {
			t.Fatalf("got %q", got)
		}
	}
	if _, err := decodeBase64URL("***"); err == nil {
		t.Fatal("expected error")
	}
}
