package models

import (
	"math"
	"reflect"
	"testing"
)

func TestVolumeOffsetIsColumnMajor(t *testing.T) {
	v := NewVolume(2, 3, 4)
	if v.Len() != 24 || len(v.Data) != 24 {
		t.Fatalf("Expected 24 samples, got %d", len(v.Data))
	}
	tests := []struct {
		idx  []int
		want int
	}{
		{[]int{0, 0, 0}, 0},
		{[]int{1, 0, 0}, 1},
		{[]int{0, 1, 0}, 2},
		{[]int{0, 0, 1}, 6},
		{[]int{1, 2, 3}, 23},
	}
	for _, tt := range tests {
		if got := v.Offset(tt.idx...); got != tt.want {
			t.Errorf("Offset(%v) = %d, want %d", tt.idx, got, tt.want)
		}
	}
	v.Set(5, 1, 2, 3)
	if v.At(1, 2, 3) != 5 || v.Data[23] != 5 {
		t.Errorf("Set/At mismatch")
	}
	if ShapeString(v.Shape) != "(2, 3, 4)" {
		t.Errorf("Unexpected shape string %s", ShapeString(v.Shape))
	}
}

func TestLabelMappingValidate(t *testing.T) {
	if err := DefaultLabelMapping().Validate(); err != nil {
		t.Errorf("Default mapping should be valid: %v", err)
	}
	bad := []LabelMapping{
		{},
		{"OS_soft": -1},
		{"OS_soft": 1, "OS_bone": 1},
	}
	for _, m := range bad {
		if err := m.Validate(); err == nil {
			t.Errorf("Expected %v to be invalid", m)
		}
	}
}

func TestLabelMappingSides(t *testing.T) {
	m := DefaultLabelMapping()
	m[RegionBackground] = 0
	m["LL_soft"] = 7
	if got := m.Sides(); !reflect.DeepEqual(got, []string{"OS", "US"}) {
		t.Errorf("Expected sides [OS US], got %v", got)
	}
}

func TestQuantificationRow(t *testing.T) {
	m := LabelMapping{RegionOSSoft: 1, RegionOSBone: 2}
	rec := QuantificationRecord{
		CaseID: "P01",
		Means:  map[string]float64{RegionOSSoft: 10, RegionOSBone: math.NaN()},
		Counts: map[string]int{RegionOSSoft: 3},
		Ratios: map[string]float64{"OS": Missing()},
	}
	wantCols := []string{"case_id", "OS_bone_mean", "OS_soft_mean", "OS_soft_to_bone_ratio", "OS_bone_n", "OS_soft_n"}
	if got := QuantificationColumns(m, true); !reflect.DeepEqual(got, wantCols) {
		t.Errorf("Unexpected columns %v", got)
	}
	want := []string{"P01", "", "10", "", "0", "3"}
	if got := rec.Row(m, true); !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected row %v", got)
	}
	if JoinKey("20200101", "120000") != "20200101_120000" {
		t.Errorf("Unexpected join key")
	}
}
