package xrpc

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/recrypt"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuthentication, http.StatusUnauthorized},
		{KindAuthorization, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimit, http.StatusTooManyRequests},
		{KindUpstream, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
		{Kind("SomethingElse"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.HTTPStatus(), string(tt.kind))
	}
}

func TestFromStoreError(t *testing.T) {
	tests := []struct {
		err      error
		wantKind Kind
		wantCode string
	}{
		{models.ErrInvalidDID, KindValidation, ""},
		{recrypt.ErrInvalidKey, KindValidation, ""},
		{models.ErrKeyPairNotFound, KindNotFound, ""},
		{models.ErrTrustNotFound, KindNotFound, ""},
		{models.ErrSessionNotFound, KindNotFound, ""},
		{models.ErrSessionKeyNotFound, KindNotFound, ""},
		{models.ErrDuplicateKey, KindConflict, CodeDuplicateKey},
		{models.ErrDuplicateTrust, KindConflict, CodeDuplicateTrust},
		{models.ErrRotationTooSoon, KindConflict, CodeRotationTooSoon},
		{models.ErrTrustQuota, KindRateLimit, CodeTrustQuota},
		{models.ErrAuthorKeyMissing, KindValidation, CodeAuthorKeyMissing},
		{models.ErrKeyOwnership, KindInternal, ""},
		{fmt.Errorf("disk on fire"), KindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := FromStoreError(tt.err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestFromStoreErrorWrapped(t *testing.T) {
	got := FromStoreError(fmt.Errorf("add trusted: %w", models.ErrTrustQuota))
	assert.Equal(t, KindRateLimit, got.Kind)
}

func TestFromStoreErrorPassesThroughClassified(t *testing.T) {
	in := NewError(KindAuthorization, "no").WithCode("Custom")
	got := FromStoreError(fmt.Errorf("wrap: %w", in))
	assert.Equal(t, KindAuthorization, got.Kind)
	assert.Equal(t, "Custom", got.Code)
}

func TestInternalMessageNeverLeaksCause(t *testing.T) {
	got := FromStoreError(fmt.Errorf("pq: connection refused to 10.0.0.5"))
	assert.Equal(t, "internal error", got.Message)
}
