package wire

import "testing"

func TestDirectAddressRoundTrip(t *testing.T) {
	a := DirectAddress{Hostname: "127.0.0.1", Port: 12345}
	got, err := ParseDirectAddress(a.Emit())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != a {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, a)
	}
}

func TestDirectAddressInvalid(t *testing.T) {
	if _, err := ParseDirectAddress("not json"); err == nil {
		t.Fatal("expected error for malformed document")
	}
	if _, err := ParseDirectAddress(`{"hostname":"","port":0}`); err == nil {
		t.Fatal("expected error for empty fields")
	}
}

func TestWhiteboardAddressHashtagSanitized(t *testing.T) {
	raw := `{"hostname":"wb.example","port":8080,"hashtag":"my tag!@#","checkFrequency":1000,"timestamp":0,"maxTries":5}`
	a, err := ParseWhiteboardAddress(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Hashtag != "mytag" {
		t.Fatalf("hashtag not sanitized, got %q", a.Hashtag)
	}
}

func TestWhiteboardAddressRoundTrip(t *testing.T) {
	a := WhiteboardAddress{
		Hostname:       "wb.example",
		Port:           8080,
		Hashtag:        "abc_123-XYZ",
		CheckFrequency: 5000,
		Timestamp:      314159265,
		MaxTries:       10,
	}
	got, err := ParseWhiteboardAddress(a.Emit())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != a {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, a)
	}
}

func TestBootstrapFileAddressOptional(t *testing.T) {
	a, err := ParseBootstrapFileAddress("")
	if err != nil {
		t.Fatalf("empty body should be valid: %v", err)
	}
	if a.Directory != "" {
		t.Fatalf("expected zero value, got %+v", a)
	}

	a, err = ParseBootstrapFileAddress(`{"directory":"/tmp/bootstrap"}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Directory != "/tmp/bootstrap" {
		t.Fatalf("unexpected directory %q", a.Directory)
	}
}
