package genotype

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeBaseQualityClamps(t *testing.T) {
	assert.Equal(t, 0, quantizeBaseQuality(1.0))
	assert.Equal(t, 4, quantizeBaseQuality(0))
	assert.Equal(t, 4, quantizeBaseQuality(1e-9))
}

func TestRefLengthBucketClamps(t *testing.T) {
	assert.Equal(t, 0, refLengthBucket(0))
	assert.Equal(t, 4, refLengthBucket(70))
	assert.Equal(t, 1, refLengthBucket(15))
}

func TestUnitSizeIndexClamps(t *testing.T) {
	assert.Equal(t, 0, unitSizeIndex(1))
	assert.Equal(t, 4, unitSizeIndex(5))
	assert.Equal(t, 4, unitSizeIndex(9))
	assert.Equal(t, 0, unitSizeIndex(0))
}

func TestLoadPhiTableRoundTrip(t *testing.T) {
	want := DefaultPhiTable()
	var sb strings.Builder
	for a := 0; a < 5; a++ {
		for b := 0; b < 5; b++ {
			for c := 0; c < 5; c++ {
				for d := 0; d < 2; d++ {
					sb.WriteString(" ")
					sb.WriteString(strconv.FormatFloat(want[a][b][c][d], 'g', -1, 64))
				}
			}
		}
	}
	got, err := LoadPhiTable(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadPhiTableTruncatedIsError(t *testing.T) {
	_, err := LoadPhiTable(strings.NewReader("1 2 3"))
	assert.Error(t, err)
}
