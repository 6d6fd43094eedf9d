package csvsource

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

func TestParseHappyPath(t *testing.T) {
	csv := "row_id,object_type,action,config,bam_id,cidr,name\n" +
		"1,ip4_block,create,Default,,10.0.0.0/8,CorpBlock\n" +
		"2,ip4_network,create,Default,,10.1.0.0/24,CorpNetwork\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, errs)
	require.Len(t, rows, 2)
	assert.Equal(t, model.ObjectBlock, rows[0].Type())
	assert.Equal(t, model.ActionCreate, rows[0].GetAction())
	cidr, ok := rows[0].Attr("cidr")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", cidr)
	assert.Equal(t, "Default", rows[0].Config())
}

func TestParseAssignsBamID(t *testing.T) {
	csv := "row_id,object_type,action,config,bam_id,address\n" +
		"1,ip4_address,update,Default,42,10.1.0.10\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	id, ok := rows[0].BamID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestParseRejectsDuplicateRowID(t *testing.T) {
	csv := "row_id,object_type,action,config,cidr\n" +
		"1,ip4_block,create,Default,10.0.0.0/8\n" +
		"1,ip4_block,create,Default,10.1.0.0/8\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Len(t, rows, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "duplicate row_id")
}

func TestParseRejectsUnknownAction(t *testing.T) {
	csv := "row_id,object_type,action,config,cidr\n" +
		"1,ip4_block,destroy,Default,10.0.0.0/8\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, rows)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unknown action")
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	csv := "row_id,object_type,action,config,cidr\n" +
		"1,ip4_block,create,Default,\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, rows)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "cidr is required")
}

func TestParseDeleteRowSkipsRequiredFieldCheck(t *testing.T) {
	csv := "row_id,object_type,action,config,bam_id,cidr\n" +
		"1,ip4_block,delete,Default,7,\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	id, ok := rows[0].BamID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestParseNormalizesApexRecordName(t *testing.T) {
	csv := "row_id,object_type,action,config,zone_name,name\n" +
		"1,host_record,create,Default,example.com,\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	name, ok := rows[0].Attr("name")
	require.True(t, ok)
	assert.Equal(t, "@", name)
}

func TestParseRejectsControlCharacters(t *testing.T) {
	csv := "row_id,object_type,action,config,cidr,name\n" +
		"1,ip4_block,create,Default,10.0.0.0/8,bad\x01name\n"

	rows, errs := Parse(strings.NewReader(csv))
	require.Empty(t, rows)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "control character")
}
