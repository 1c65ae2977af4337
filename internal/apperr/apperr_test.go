package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type stockError struct{ id string }

func (e *stockError) Error() string { return "insufficient stock for product " + e.id }
func (e *stockError) Kind() Kind    { return KindConflict }

func TestKindOf(t *testing.T) {
	sentinel := New(KindNotFound, "cart not found")

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "plain error is internal",
			err:        errors.New("connection reset"),
			wantKind:   KindInternal,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
		{
			name:       "wrapped sentinel keeps kind and message",
			err:        errors.Wrap(sentinel, "get cart"),
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "cart not found",
		},
		{
			name:       "typed error via fmt wrapping",
			err:        fmt.Errorf("checkout: %w", &stockError{id: "p1"}),
			wantKind:   KindConflict,
			wantStatus: http.StatusConflict,
			wantMsg:    "insufficient stock for product p1",
		},
		{
			name:       "wrap hides cause from message",
			err:        Wrap(KindValidation, errors.New("strconv: bad"), "invalid price"),
			wantKind:   KindValidation,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid price",
		},
		{
			name:       "inconsistent never leaks",
			err:        Wrap(KindInconsistent, errors.New("commit: conn closed"), "commit"),
			wantKind:   KindInconsistent,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "checkout outcome is unknown, please verify your orders before retrying",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantStatus, KindOf(tt.err).HTTPStatus())
			assert.Equal(t, tt.wantMsg, PublicMessage(tt.err))
		})
	}
}

func TestSentinelIdentity(t *testing.T) {
	a := New(KindNotFound, "x")
	b := New(KindNotFound, "x")
	assert.ErrorIs(t, errors.Wrap(a, "ctx"), a)
	assert.NotErrorIs(t, a, b)
}

func TestDetails(t *testing.T) {
	err := New(KindValidation, "validation failed").WithDetails(map[string]string{"quantity": "must be at least 1"})
	assert.Equal(t, "must be at least 1", DetailsOf(errors.Wrap(err, "decode"))["quantity"])
	assert.Nil(t, DetailsOf(errors.New("x")))
}
