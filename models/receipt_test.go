package models

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'RN-1' for key 'receipt_number'"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate entry", dup, true},
		{"wrapped duplicate entry", fmt.Errorf("create receipt: %w", dup), true},
		{"other mysql error", &mysqlDriver.MySQLError{Number: 1213}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := isDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("%s: isDuplicateKeyErr = %v, want %v", tc.name, got, tc.want)
		}
	}
}
