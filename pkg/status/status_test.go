package status

import (
    "errors"
    "fmt"
    "testing"
)

func TestSentinelMatchAfterWrap(t *testing.T) {
    err := fmt.Errorf("import: %w", Errorf(CodeInvalidHandle, "channel %s destroyed", "abc"))
    if !errors.Is(err, ErrInvalidHandle) { t.Fatalf("expected ErrInvalidHandle match: %v", err) }
    if errors.Is(err, ErrStaleBinding) { t.Fatalf("unexpected ErrStaleBinding match") }
    if CodeOf(err) != CodeInvalidHandle { t.Fatalf("code = %s", CodeOf(err)) }
}

func TestCodeOf(t *testing.T) {
    if CodeOf(nil) != CodeOK { t.Fatalf("nil must map to ok") }
    if CodeOf(errors.New("x")) != CodeInternal { t.Fatalf("plain error must map to internal") }
}

func TestReport(t *testing.T) {
    var got Code
    var msg string
    r := ReporterFunc(func(c Code, m string) { got, msg = c, m })
    Report(r, ErrResourceExhausted)
    if got != CodeResourceExhausted || msg == "" { t.Fatalf("report mismatch: %s %q", got, msg) }
    Report(r, nil)
    if got != CodeResourceExhausted { t.Fatalf("nil error must not be reported") }
}
