package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonCatalogBuild)
	if Reason(err) != ReasonCatalogBuild {
		t.Fatalf("expected reason %s, got %s", ReasonCatalogBuild, Reason(err))
	}
	if !HasReason(err, ReasonCatalogBuild) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonHAConnect)
	second := Wrap(first, ReasonCatalogBuild)
	if Reason(second) != ReasonHAConnect {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("list entities: %w", Wrap(assertErr{}, ReasonRegistryIO))
	if Reason(err) != ReasonRegistryIO {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown for nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestWrapOpPrefixesMessage(t *testing.T) {
	err := WrapOp(assertErr{}, ReasonHACommand, "get_states")
	if err.Error() != "get_states: boom" {
		t.Fatalf("expected op prefix, got %q", err.Error())
	}
	if WrapOp(nil, ReasonHACommand, "get_states") != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestPermanentReasons(t *testing.T) {
	if !Permanent(ReasonHAAuth) || !Permanent(ReasonConfigInvalid) {
		t.Fatalf("expected auth and config failures to be permanent")
	}
	if Permanent(ReasonHAConnect) || Permanent(Reason(assertErr{})) {
		t.Fatalf("expected connect and untagged failures to be retryable")
	}
}
