package models

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Region names used by the segmentation label scheme
const (
	RegionOSSoft     = "OS_soft"
	RegionOSBone     = "OS_bone"
	RegionUSSoft     = "US_soft"
	RegionUSBone     = "US_bone"
	RegionBackground = "Background"
)

const (
	softSuffix = "_soft"
	boneSuffix = "_bone"
)

// LabelMapping maps a semantic region name to its integer label value
type LabelMapping map[string]int

// DefaultLabelMapping is the label scheme produced by the segmentation model:
// 1 = OS soft tissue, 2 = OS bone, 3 = US soft tissue, 4 = US bone
func DefaultLabelMapping() LabelMapping {
	return LabelMapping{
		RegionOSSoft: 1,
		RegionOSBone: 2,
		RegionUSSoft: 3,
		RegionUSBone: 4,
	}
}

// Validate checks that label values are non-negative and disjoint
func (m LabelMapping) Validate() error {
	if len(m) == 0 {
		return errors.New("label mapping is empty")
	}
	seen := make(map[int]string, len(m))
	for _, name := range m.Regions() {
		v := m[name]
		if v < 0 {
			return errors.Errorf("label %q has negative value %d", name, v)
		}
		if other, ok := seen[v]; ok {
			return errors.Errorf("labels %q and %q share value %d", other, name, v)
		}
		seen[v] = name
	}
	return nil
}

// Regions returns the region names in lexicographic order
func (m LabelMapping) Regions() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sides returns every prefix P for which both P_soft and P_bone are mapped,
// in lexicographic order
func (m LabelMapping) Sides() []string {
	var sides []string
	for _, name := range m.Regions() {
		if !strings.HasSuffix(name, softSuffix) {
			continue
		}
		side := strings.TrimSuffix(name, softSuffix)
		if _, ok := m[side+boneSuffix]; ok {
			sides = append(sides, side)
		}
	}
	return sides
}

// SoftRegion and BoneRegion name the two regions of a body side
func SoftRegion(side string) string { return side + softSuffix }
func BoneRegion(side string) string { return side + boneSuffix }
