package wsi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindCodes(t *testing.T) {
	cases := []struct {
		kind   ErrKind
		code   string
		status int
	}{
		{ErrNotFound, "not_found", http.StatusNotFound},
		{ErrUnsupportedFormat, "unsupported_format", http.StatusUnsupportedMediaType},
		{ErrInvalidLevel, "invalid_level", http.StatusBadRequest},
		{ErrTileOutOfBounds, "tile_out_of_bounds", http.StatusBadRequest},
		{ErrInvalidQuality, "invalid_quality", http.StatusBadRequest},
		{ErrTransport, "connection_error", http.StatusBadGateway},
		{ErrConnection, "connection_error", http.StatusBadGateway},
		{ErrIO, "io_error", http.StatusInternalServerError},
		{ErrDecode, "decode_error", http.StatusInternalServerError},
		{ErrEncode, "encode_error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.kind.Code() != tc.code {
			t.Errorf("kind %d code %q, want %q\n", tc.kind, tc.kind.Code(), tc.code)
		}
		if tc.kind.HTTPStatus() != tc.status {
			t.Errorf("kind %d status %d, want %d\n", tc.kind, tc.kind.HTTPStatus(), tc.status)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := NewError(ErrNotFound, "slide %q missing", "x.svs")
	if KindOf(err) != ErrNotFound {
		t.Errorf("KindOf lost the kind\n")
	}
	if KindOf(errors.New("anonymous")) != ErrIO {
		t.Errorf("unclassified errors should default to io_error\n")
	}

	wrapped := fmt.Errorf("context: %w", err)
	if KindOf(wrapped) != ErrNotFound {
		t.Errorf("KindOf should see through fmt.Errorf wrapping\n")
	}
}

func TestWrapErrorPreservesKind(t *testing.T) {
	inner := NewError(ErrTransport, "connection reset")
	outer := WrapError(inner, ErrIO, "reading block 5")
	if KindOf(outer) != ErrTransport {
		t.Errorf("wrapping must preserve the original kind\n")
	}
	if !errors.Is(outer, inner) && errors.Unwrap(outer) != inner {
		t.Errorf("wrapped error should unwrap to the original\n")
	}
}
