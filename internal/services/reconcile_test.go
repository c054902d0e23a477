package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		existing  []int64
		harvested []int64
		want      []int64
	}{
		{"overlap", []int64{1, 2, 3}, []int64{2, 3, 4, 5}, []int64{4, 5}},
		{"nothing stored", nil, []int64{7, 8}, []int64{7, 8}},
		{"nothing harvested", []int64{1}, nil, nil},
		{"all known", []int64{1, 2}, []int64{2, 1}, nil},
		{"repeats collapse", nil, []int64{9, 9, 3, 9}, []int64{9, 3}},
		{"keeps harvested order", []int64{5}, []int64{30, 10, 5, 20}, []int64{30, 10, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewIdentifiers(tt.existing, tt.harvested)
			assert.Equal(t, tt.want, got)
		})
	}
}
