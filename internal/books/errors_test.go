package books

import (
	"errors"
	"fmt"
	"testing"
)

func TestSourceErrorUnwrap(t *testing.T) {
	err := WrapSourceError(PlatformZLibrary, "download", ErrAuthRejected)

	if !errors.Is(err, ErrAuthRejected) {
		t.Error("wrapped sentinel must survive errors.Is")
	}

	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatal("expected SourceError via errors.As")
	}
	if srcErr.Platform != PlatformZLibrary || srcErr.Op != "download" {
		t.Errorf("unexpected fields: %+v", srcErr)
	}
}

func TestAggregateSearchError(t *testing.T) {
	agg := &AggregateSearchError{Failures: map[Platform]error{
		PlatformArchiveOrg: ErrNetwork,
		PlatformZLibrary:   ErrAuthRejected,
	}}

	if !errors.Is(agg, ErrNetwork) {
		t.Error("aggregate must match member network error")
	}
	if !errors.Is(agg, ErrAuthRejected) {
		t.Error("aggregate must match member auth error")
	}
	if errors.Is(agg, ErrBadDescriptor) {
		t.Error("aggregate must not match absent errors")
	}
}

func TestClassificationHelpers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		isAuth  bool
		isNet   bool
		isConf  bool
		isDL    bool
	}{
		{"auth required", ErrAuthRequired, true, false, false, false},
		{"auth rejected wrapped", fmt.Errorf("login: %w", ErrAuthRejected), true, false, false, false},
		{"network sentinel", ErrNetwork, false, true, false, false},
		{"network by message", errors.New("dial tcp 1.2.3.4: connection refused"), false, true, false, false},
		{"not configured", ErrNotConfigured, false, false, true, false},
		{"invalid config", ErrInvalidConfig, false, false, true, false},
		{"download failed", ErrDownloadFailed, false, false, false, true},
		{"not supported", ErrDownloadNotSupported, false, false, false, true},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.isAuth {
				t.Errorf("IsAuthError = %v, want %v", got, tt.isAuth)
			}
			if got := IsNetworkError(tt.err); got != tt.isNet {
				t.Errorf("IsNetworkError = %v, want %v", got, tt.isNet)
			}
			if got := IsConfigurationError(tt.err); got != tt.isConf {
				t.Errorf("IsConfigurationError = %v, want %v", got, tt.isConf)
			}
			if got := IsDownloadError(tt.err); got != tt.isDL {
				t.Errorf("IsDownloadError = %v, want %v", got, tt.isDL)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	for _, platform := range AllPlatforms() {
		parsed, ok := ParsePlatform(string(platform))
		if !ok || parsed != platform {
			t.Errorf("round trip failed for %s", platform)
		}
	}

	if _, ok := ParsePlatform("gutenberg"); ok {
		t.Error("unknown platform must not parse")
	}
}
