package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "  hello  ", want: "hello"},
		{in: "<b>Join</b> us", want: "Join us"},
		{in: "<script>alert(1)</script>welcome", want: "welcome"},
		{in: "Tom & Jerry's team", want: "Tom & Jerry's team"},
		{in: "<a href=\"https://x.test\">link</a>", want: "link"},
		{in: "   ", want: ""},
		{in: "&lt;script&gt;alert(1)&lt;/script&gt;", want: ""},
		{in: "hi &lt;img src=x onerror=alert(1)&gt;", want: "hi"},
		{in: "&amp;lt;b&amp;gt;bold", want: "bold"},
		{in: "5 &lt; 6", want: "5 < 6"},
	}
	for _, tc := range cases {
		if got := Text(tc.in); got != tc.want {
			t.Fatalf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTextNeverReturnsMarkup(t *testing.T) {
	inputs := []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&#60;iframe src=x&#62;&#60;/iframe&#62;",
		"&amp;amp;lt;svg onload=alert(1)&amp;amp;gt;",
		"<<b>script>alert(1)<</b>/script>",
	}
	for _, in := range inputs {
		got := Text(in)
		if strings.Contains(got, "<script") || strings.Contains(got, "<iframe") || strings.Contains(got, "<svg") {
			t.Fatalf("Text(%q) = %q still carries markup", in, got)
		}
	}
}

func TestASCIIKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Şirket Adı 123", want: "sirket adi 123"},
		{in: "  Acme,   Inc.  ", want: "acme inc"},
		{in: "Çağrı  Öztürk", want: "cagri ozturk"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := ASCIIKey(tc.in); got != tc.want {
			t.Fatalf("ASCIIKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmailAndFullName(t *testing.T) {
	if got := Email(" User@Example.COM "); got != "user@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
	if !IsFullName("Ayşe Nur-Kaya") {
		t.Fatalf("expected valid full name")
	}
	if IsFullName("R2D2") {
		t.Fatalf("expected digits to be rejected")
	}
}
