package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

func TestParseBatches(t *testing.T) {
	input := strings.Join([]string{
		`{"site":101,"header":{"in_direction":"N","municipality":"Upper Darby"}}`,
		`{"site":101,"count":{"kind":"15min_volume","date":"2023-11-06","time":"07:00","direction":"east","lane":1,"total":42}}`,
		`{"site":202,"count":{"kind":"class","date":"2023-11-06","time":"08:00","direction":"north","lane":1,"classes":{"2":10,"3":2}}}`,
		``,
		`{"site":101,"count":{"kind":"15min_volume","date":"2023-11-06","time":"07:15","direction":"east","lane":1,"total":38}}`,
	}, "\n")

	batches, err := ParseBatches(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, int64(101), batches[0].Site)
	require.NotNil(t, batches[0].Header)
	assert.Equal(t, "N", batches[0].Header.InDirection)
	require.Len(t, batches[0].Records, 2)
	require.NotNil(t, batches[0].Records[0].Total)
	assert.Equal(t, 42, *batches[0].Records[0].Total)

	assert.Equal(t, int64(202), batches[1].Site)
	assert.Nil(t, batches[1].Header)
	require.Len(t, batches[1].Records, 1)
	assert.Equal(t, map[domain.VehicleClass]int{2: 10, 3: 2}, batches[1].Records[0].Classes)
}

func TestParseBatchesMalformedLine(t *testing.T) {
	_, err := ParseBatches(strings.NewReader(`{"site":101,"count":{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestParseBatchesMissingSite(t *testing.T) {
	_, err := ParseBatches(strings.NewReader(`{"count":{"kind":"volume"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid site")
}

func TestParseBatchesHeaderAndCountOnOneLine(t *testing.T) {
	_, err := ParseBatches(strings.NewReader(`{"site":101,"header":{},"count":{"kind":"volume"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestParseBatchesBareLine(t *testing.T) {
	_, err := ParseBatches(strings.NewReader(`{"site":101}`))
	require.Error(t, err)
}

func TestParseBatchesDuplicateHeader(t *testing.T) {
	input := `{"site":101,"header":{}}` + "\n" + `{"site":101,"header":{}}`
	_, err := ParseBatches(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate header")
}

func TestParseBatchesEmptyFile(t *testing.T) {
	batches, err := ParseBatches(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, batches)
}
