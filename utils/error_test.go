package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	storage := StorageError(errors.New("deadlock"))
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NotFoundError("receipt %d not found", 7), KindNotFound},
		{ValidationError("select at least one reason"), KindValidation},
		{storage, KindStorage},
		{DeliveryError(errors.New("telegram down")), KindDelivery},
		{fmt.Errorf("wrap: %w", storage), KindStorage},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := StorageError(cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
}
