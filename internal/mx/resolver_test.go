package mx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortByPriority_AscendingRegardlessOfDNSOrder(t *testing.T) {
	records := []Record{
		{Exchange: "c.example.com", Priority: 30},
		{Exchange: "a.example.com", Priority: 10},
		{Exchange: "b.example.com", Priority: 20},
	}
	SortByPriority(records)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.Exchange
	}
	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, got)
}

func TestSortByPriority_TiesKeepInputOrder(t *testing.T) {
	records := []Record{
		{Exchange: "first.example.com", Priority: 10},
		{Exchange: "second.example.com", Priority: 10},
	}
	SortByPriority(records)
	assert.Equal(t, "first.example.com", records[0].Exchange)
	assert.Equal(t, "second.example.com", records[1].Exchange)
}
