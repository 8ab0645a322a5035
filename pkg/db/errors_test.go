package db

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres", err: errors.New(`ERROR: duplicate key value violates unique constraint "payment_transactions_pkey"`), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: payment_transactions.id"), want: true},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "named constraint", err: errors.New(`duplicate key value violates unique constraint "ux_cpm_single_default"`), constraint: "ux_cpm_single_default", want: true},
		{name: "other constraint", err: errors.New(`duplicate key value violates unique constraint "x"`), constraint: "ux_cpm_single_default", want: false},
		{name: "unrelated", err: errors.New("connection reset"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
