package urlutil

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestBuildAbsolute_JoinsWithSingleSlash(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scheme := rapid.SampledFrom([]string{"http", "https"}).Draw(rt, "scheme")
		host := fmt.Sprintf("%s.%s:%d",
			rapid.StringMatching(`[a-z]{3,12}`).Draw(rt, "host"),
			rapid.StringMatching(`[a-z]{2,8}`).Draw(rt, "tld"),
			rapid.IntRange(1024, 9999).Draw(rt, "port"),
		)
		slashes := strings.Repeat("/", rapid.IntRange(0, 3).Draw(rt, "slashes"))
		path := rapid.StringMatching(`[a-z]{1,8}(/[a-z0-9]{1,8}){0,2}`).Draw(rt, "path")
		leading := rapid.Bool().Draw(rt, "leading")

		p := path
		if leading {
			p = "/" + path
		}
		got := BuildAbsolute(scheme+"://"+host+slashes, p)
		want := scheme + "://" + host + "/" + path
		if got != want {
			rt.Fatalf("BuildAbsolute mismatch: got=%s want=%s", got, want)
		}
	})
}

func TestBuildAbsolute_KeepsAbsolutePath(t *testing.T) {
	if got := BuildAbsolute("http://a.test", "https://b.test/x"); got != "https://b.test/x" {
		t.Fatalf("absolute path rewritten: %s", got)
	}
	if got := BuildAbsolute(" http://a.test/ ", ""); got != "http://a.test" {
		t.Fatalf("empty path: %s", got)
	}
}

func TestIsHTTPURL(t *testing.T) {
	for raw, want := range map[string]bool{
		"http://localhost:3000":      true,
		"https://staging.vaults.xyz": true,
		"ftp://x.test":               false,
		"localhost:3000":             false,
		"/vaults":                    false,
		"":                           false,
	} {
		if got := IsHTTPURL(raw); got != want {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !IsLocal("http://127.0.0.1:4010") || !IsLocal("http://localhost") {
		t.Fatal("loopback not detected")
	}
	if IsLocal("https://staging.vaults.xyz") {
		t.Fatal("remote host reported local")
	}
}
