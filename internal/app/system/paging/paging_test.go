package paging

import (
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestParseStartAndLimit(t *testing.T) {
	tests := []struct {
		target    string
		wantStart int
		wantLimit int
	}{
		{"/n", 1, PageSize},
		{"/n?start=11&limit=10", 11, 10},
		{"/n?start=0&limit=-3", 1, PageSize},
		{"/n?start=abc&limit=xyz", 1, PageSize},
		{"/n?limit=5000", 1, MaxPageSize},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.target, nil)
		if got := ParseStart(r); got != tt.wantStart {
			t.Errorf("ParseStart(%s): got %d, want %d", tt.target, got, tt.wantStart)
		}
		if got := ParseLimit(r); got != tt.wantLimit {
			t.Errorf("ParseLimit(%s): got %d, want %d", tt.target, got, tt.wantLimit)
		}
	}
}

func TestWindow(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	tests := []struct {
		name       string
		start      int
		size       int
		wantRows   []int
		wantResult Result
	}{
		{"first page", 1, 2, []int{1, 2}, Result{HasPrev: false, HasNext: true}},
		{"middle page", 3, 2, []int{3, 4}, Result{HasPrev: true, HasNext: true}},
		{"last partial page", 5, 2, []int{5}, Result{HasPrev: true, HasNext: false}},
		{"everything", 1, 10, []int{1, 2, 3, 4, 5}, Result{}},
		{"past the end", 9, 2, nil, Result{HasPrev: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := Window(rows, tt.start, tt.size)
			if !reflect.DeepEqual(got, tt.wantRows) {
				t.Errorf("rows: got %v, want %v", got, tt.wantRows)
			}
			if res != tt.wantResult {
				t.Errorf("result: got %+v, want %+v", res, tt.wantResult)
			}
		})
	}
}

func TestComputeRange(t *testing.T) {
	tests := []struct {
		start, shown, size int
		want               Range
	}{
		{1, 0, 50, Range{Start: 0, End: 0, PrevStart: 1, NextStart: 1}},
		{1, 50, 50, Range{Start: 1, End: 50, PrevStart: 1, NextStart: 51}},
		{51, 20, 50, Range{Start: 51, End: 70, PrevStart: 1, NextStart: 71}},
		{21, 10, 10, Range{Start: 21, End: 30, PrevStart: 11, NextStart: 31}},
	}
	for _, tt := range tests {
		if got := ComputeRange(tt.start, tt.shown, tt.size); got != tt.want {
			t.Errorf("ComputeRange(%d, %d, %d): got %+v, want %+v", tt.start, tt.shown, tt.size, got, tt.want)
		}
	}
}
