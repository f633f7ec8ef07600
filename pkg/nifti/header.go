package nifti

import "math"

// Header defines the on-disk NIfTI-1 header (348 bytes).
//
// Type translation from the nifti1.h C header to Go:
//
//	C     Go
//	-------------
//	int   int32
//	float float32
//	short int16
//	char  int8
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b params
	QuaternC float32 // Quaternion c params
	QuaternD float32 // Quaternion d params
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // Must be "n+1\0" for single-file NIfTI
}

const (
	headerSize    = 348
	minDataOffset = 352
)

// Data type codes (NIFTI_TYPE_*)
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTInt8    = 256
	DTUint16  = 512
	DTUint32  = 768
	DTInt64   = 1024
	DTUint64  = 1280
)

var singleFileMagic = [4]int8{'n', '+', '1', 0}

// bytesPer returns the storage size of one sample for a data type code
func bytesPer(dt int16) int {
	switch dt {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTInt64, DTUint64, DTFloat64:
		return 8
	}
	return 0
}

// Shape returns dim[1..dim[0]]
func (h *Header) Shape() []int {
	n := int(h.Dim[0])
	shape := make([]int, n)
	for i := 0; i < n; i++ {
		shape[i] = int(h.Dim[i+1])
	}
	return shape
}

// scaling reports the slope and intercept to apply, and whether to apply them
func (h *Header) scaling() (float64, float64, bool) {
	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1, 0, false
	}
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}
	if slope == 1 && inter == 0 {
		return 1, 0, false
	}
	return slope, inter, true
}

// Affine returns the voxel-to-world transform: the sform when present, then
// the qform, then a diagonal built from pixdim
func (h *Header) Affine() [4][4]float64 {
	var m [4][4]float64
	m[3][3] = 1
	switch {
	case h.SFormCode > 0:
		rows := [3][4]float32{h.SRowX, h.SRowY, h.SRowZ}
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				m[i][j] = float64(rows[i][j])
			}
		}
	case h.QFormCode > 0:
		m = h.qformAffine()
	default:
		for i := 0; i < 3; i++ {
			m[i][i] = h.spacing(i + 1)
		}
	}
	return m
}

func (h *Header) spacing(axis int) float64 {
	d := float64(h.PixDim[axis])
	if d == 0 || math.IsNaN(d) {
		return 1
	}
	return math.Abs(d)
}

// qformAffine builds the transform from the quaternion parameters
// (nifti_quatern_to_mat44)
func (h *Header) qformAffine() [4][4]float64 {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		n := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*n, c*n, d*n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	qfac := 1.0
	if h.PixDim[0] < 0 {
		qfac = -1
	}
	dx, dy, dz := h.spacing(1), h.spacing(2), h.spacing(3)*qfac

	var m [4][4]float64
	m[0] = [4]float64{(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.QOffsetX)}
	m[1] = [4]float64{2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.QOffsetY)}
	m[2] = [4]float64{2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - c*c - b*b) * dz, float64(h.QOffsetZ)}
	m[3] = [4]float64{0, 0, 0, 1}
	return m
}
